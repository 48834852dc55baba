package synackcookie

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irctrakz/mirage/pkg/core"
)

var testKey = [2]uint64{0x06a0a1d63f305e9b, 0xd4d4bcbb7304875f}

func testIdentity() *core.ClientIdentity {
	return &core.ClientIdentity{
		IPSrc:     net.ParseIP("27.198.143.1"),
		IPDst:     net.ParseIP("90.64.122.203"),
		Transport: core.TransportTCP,
		PortSrc:   65000,
		PortDst:   80,
	}
}

func TestRoundTripIPv4(t *testing.T) {
	ci := testIdentity()
	cookie, err := Generate(ci, testKey)
	require.NoError(t, err)
	assert.True(t, Check(ci, cookie, testKey))
}

func TestRoundTripIPv6(t *testing.T) {
	ci := &core.ClientIdentity{
		IPSrc:     net.ParseIP("2001:db8:1::2e34"),
		IPDst:     net.ParseIP("2001:db8:2::5d90"),
		Transport: core.TransportTCP,
		PortSrc:   65000,
		PortDst:   80,
	}
	cookie, err := Generate(ci, testKey)
	require.NoError(t, err)
	assert.True(t, Check(ci, cookie, testKey))
}

func TestDeterministic(t *testing.T) {
	a, err := Generate(testIdentity(), testKey)
	require.NoError(t, err)
	b, err := Generate(testIdentity(), testKey)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

// Distinct tuples must produce distinct cookies with overwhelming
// probability. Sweeping the source port gives 1024 nearby tuples; any
// collision rate visible at this scale would make handshakes forgeable by
// neighbors.
func TestTupleSeparation(t *testing.T) {
	seen := make(map[uint32]uint16)
	for port := uint16(30000); port < 31024; port++ {
		ci := testIdentity()
		ci.PortSrc = port
		cookie, err := Generate(ci, testKey)
		require.NoError(t, err)
		if prev, dup := seen[cookie]; dup {
			t.Fatalf("cookie collision between ports %d and %d", prev, port)
		}
		seen[cookie] = port
	}
}

func TestKeySeparation(t *testing.T) {
	ci := testIdentity()
	a, err := Generate(ci, testKey)
	require.NoError(t, err)
	b, err := Generate(ci, [2]uint64{1, 2})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.False(t, Check(ci, a, [2]uint64{1, 2}))
}

func TestWrongCookieRejected(t *testing.T) {
	ci := testIdentity()
	cookie, err := Generate(ci, testKey)
	require.NoError(t, err)
	assert.False(t, Check(ci, cookie+1, testKey))
}

func TestIncompleteIdentity(t *testing.T) {
	_, err := Generate(&core.ClientIdentity{}, testKey)
	assert.Error(t, err)

	_, err = Generate(nil, testKey)
	assert.Error(t, err)

	assert.False(t, Check(&core.ClientIdentity{}, 0, testKey))
}

func TestServiceImplementsCookieService(t *testing.T) {
	var svc core.CookieService = Service{}
	ci := testIdentity()
	cookie, err := svc.Generate(ci, testKey)
	require.NoError(t, err)
	assert.True(t, svc.Check(ci, cookie, testKey))
}
