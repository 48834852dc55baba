package main

import (
	"encoding/json"
	"os"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/irctrakz/mirage/pkg/logging"
	"github.com/irctrakz/mirage/pkg/socket"
)

type metricsSnapshot struct {
	Timestamp string            `json:"ts"`
	Total     map[string]uint64 `json:"total"`
	TCP       map[string]uint64 `json:"tcp"`
	UDP       map[string]uint64 `json:"udp"`
	ICMP      map[string]uint64 `json:"icmp"`
	Proc      map[string]uint64 `json:"proc"`
	RT        map[string]uint64 `json:"rt"`
	Srv       map[string]uint64 `json:"srv_limits"`
}

func runMetricsReporter(si *socket.SocketInterface) {
	iv := strings.TrimSpace(os.Getenv("METRICS_INTERVAL"))
	if iv == "" {
		iv = "30s"
	}
	d, err := time.ParseDuration(iv)
	if err != nil {
		d = 30 * time.Second
	}

	format := strings.ToLower(strings.TrimSpace(os.Getenv("METRICS_FORMAT")))
	if format == "" {
		format = "text"
	}

	ticker := time.NewTicker(d)
	defer ticker.Stop()
	for {
		dumpMetrics(si, format)
		<-ticker.C
	}
}

func pathMap(p socket.PathMetrics) map[string]uint64 {
	return map[string]uint64{
		"recv":       p.Received,
		"replied":    p.Replied,
		"suppressed": p.Suppressed,
		"errors":     p.Errors,
	}
}

func dumpMetrics(si *socket.SocketInterface, format string) {
	dm := si.DetailedMetrics()
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	snap := metricsSnapshot{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Total: map[string]uint64{
			"pkts_sent":  dm.Total.PacketsSent,
			"pkts_recv":  dm.Total.PacketsReceived,
			"bytes_sent": dm.Total.BytesSent,
			"bytes_recv": dm.Total.BytesReceived,
			"suppressed": dm.Total.RepliesSuppressed,
			"errors":     dm.Total.Errors,
		},
		TCP:  pathMap(dm.TCP),
		UDP:  pathMap(dm.UDP),
		ICMP: pathMap(dm.ICMP),
		Proc: dm.Processor,
		RT: map[string]uint64{
			"heap_alloc": ms.HeapAlloc,
			"heap_inuse": ms.HeapInuse,
			"sys":        ms.Sys,
			"num_gc":     uint64(ms.NumGC),
			"goroutines": uint64(runtime.NumGoroutine()),
		},
		Srv: buildServerLimits(),
	}

	switch format {
	case "json":
		b, _ := json.Marshal(snap)
		logging.Infof("metrics: %s", string(b))
	default:
		qfd := snap.Proc["queueFullDrops"]
		logging.Infof("metrics: ts=%s total: recv=%d/%d sent=%d/%d supp=%d err=%d | tcp: %d/%d/%d | udp: %d/%d/%d | icmp: %d/%d/%d | proc: qfd=%d | srv: fds=%d/%d | rt: heap=%dMi gor=%d gc=%d",
			snap.Timestamp,
			snap.Total["pkts_recv"], snap.Total["bytes_recv"],
			snap.Total["pkts_sent"], snap.Total["bytes_sent"],
			snap.Total["suppressed"], snap.Total["errors"],
			snap.TCP["recv"], snap.TCP["replied"], snap.TCP["suppressed"],
			snap.UDP["recv"], snap.UDP["replied"], snap.UDP["suppressed"],
			snap.ICMP["recv"], snap.ICMP["replied"], snap.ICMP["suppressed"],
			qfd,
			snap.Srv["open_fds"], snap.Srv["nofile_soft"],
			snap.RT["heap_alloc"]/(1024*1024), snap.RT["goroutines"], snap.RT["num_gc"],
		)
	}
}

// buildServerLimits collects best-effort process limits that can throttle the
// capture path.
func buildServerLimits() map[string]uint64 {
	out := map[string]uint64{}
	var rl syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rl); err == nil {
		out["nofile_soft"] = rl.Cur
		out["nofile_hard"] = rl.Max
	}
	if ents, err := os.ReadDir("/proc/self/fd"); err == nil {
		out["open_fds"] = uint64(len(ents))
		if soft, ok := out["nofile_soft"]; ok && soft > 0 {
			out["fd_util_pct"] = (out["open_fds"] * 100) / soft
		}
	}
	return out
}
