package peers

import (
	"net"
	"strconv"
	"strings"
)

// Well-known exporter endpoint polled on every peer.
const (
	DefaultExporterPort = 8080
	DefaultExporterPath = "/temp"
)

// NormalizeURL turns a peer address into the URL to poll. Addresses that
// already carry a scheme are used verbatim. Bare hosts get the exporter's
// port and path; a bare host:port keeps its port.
func NormalizeURL(addr string, port int, path string) string {
	addr = strings.TrimSpace(addr)
	if strings.Contains(addr, "://") {
		return addr
	}
	if port <= 0 {
		port = DefaultExporterPort
	}
	if path == "" {
		path = DefaultExporterPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	host := addr
	if h, p, err := net.SplitHostPort(addr); err == nil {
		host = h
		if n, err := strconv.Atoi(p); err == nil && n > 0 {
			port = n
		}
	}
	return "http://" + net.JoinHostPort(strings.Trim(host, "[]"), strconv.Itoa(port)) + path
}
