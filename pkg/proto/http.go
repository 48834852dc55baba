package proto

import (
	"bytes"
	"fmt"

	"github.com/irctrakz/mirage/pkg/core"
)

// httpMethods are the request-line prefixes the detector accepts.
var httpMethods = [][]byte{
	[]byte("GET "),
	[]byte("HEAD "),
	[]byte("POST "),
	[]byte("PUT "),
	[]byte("DELETE "),
	[]byte("OPTIONS "),
	[]byte("PATCH "),
}

const httpBody = "<html><head><title>Welcome</title></head><body><h1>It works!</h1></body></html>\n"

// HTTPHandler answers anything that opens with an HTTP request line. Every
// path returns the same small page: the goal is to look like a live default
// vhost, not to serve content.
type HTTPHandler struct{}

// Name implements Handler.
func (*HTTPHandler) Name() string { return "http" }

// Detect implements Handler.
func (*HTTPHandler) Detect(payload []byte) bool {
	for _, m := range httpMethods {
		if bytes.HasPrefix(payload, m) {
			return true
		}
	}
	return false
}

// Repl implements Handler.
func (*HTTPHandler) Repl(payload []byte, ci *core.ClientIdentity) []byte {
	head := bytes.HasPrefix(payload, []byte("HEAD "))

	resp := fmt.Sprintf("HTTP/1.1 200 OK\r\n"+
		"Server: nginx\r\n"+
		"Content-Type: text/html\r\n"+
		"Content-Length: %d\r\n"+
		"Connection: keep-alive\r\n"+
		"\r\n", len(httpBody))
	if head {
		return []byte(resp)
	}
	return []byte(resp + httpBody)
}
