// Package addr parses the server address the user supplies on the
// command line into the host and port the reflector is listening on.
package addr

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Normalize accepts host:port, bracketed IPv6 with a port ([::1]:9100),
// and reflector:// links and returns the host and numeric port separately,
// matching the connect(server_ip, server_port) operation's two required
// arguments. Unlike a browser URL, there is no conventional default
// port for a reflector, so a missing port is a parse error rather than
// a guess.
func Normalize(raw string) (host string, port int, err error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", 0, fmt.Errorf("server address is required")
	}

	if strings.HasPrefix(s, "reflector://") {
		s = strings.TrimPrefix(s, "reflector://")
	}
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", 0, fmt.Errorf("invalid server address: missing host")
	}

	h, p, splitErr := net.SplitHostPort(s)
	if splitErr != nil {
		return "", 0, fmt.Errorf("invalid server address %q: missing port", raw)
	}
	if h == "" {
		return "", 0, fmt.Errorf("invalid server address: missing host")
	}

	n, convErr := strconv.Atoi(p)
	if convErr != nil || n < 1 || n > 65535 {
		return "", 0, fmt.Errorf("invalid server port: %q", p)
	}

	return h, n, nil
}
