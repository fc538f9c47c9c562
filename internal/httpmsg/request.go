// Package httpmsg parses a raw client request into its routing-relevant
// parts: method, request-line, target host/port, path, and headers.
package httpmsg

import (
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/hallvik/gatekeeper/pkg/errors"
)

// MethodConnect is the CONNECT verb, which routes through the tunnel relay
// instead of the HTTP relay.
const MethodConnect = "CONNECT"

// Request is the parsed form of a client's request line and headers,
// carrying just enough to route and relay it.
type Request struct {
	Method      string
	Host        string
	Port        int
	Path        string
	Version     string
	RequestLine string
	Headers     map[string]string
}

// Parse parses the header block of raw into a Request. raw may hold the
// whole request as read off the wire: parsing stops at the blank line that
// terminates the headers, and anything after it (such as a body) is
// ignored. It returns a protocol error if the request line is malformed or
// no usable host can be determined.
func Parse(raw []byte) (*Request, error) {
	text := string(raw)
	lines := strings.Split(text, "\r\n")
	if len(lines) == 0 || lines[0] == "" {
		return nil, errors.NewProtocolError("empty request", nil)
	}

	requestLine := lines[0]
	method, target, version, err := splitRequestLine(requestLine)
	if err != nil {
		return nil, err
	}

	headers := make(map[string]string)
	for _, line := range lines[1:] {
		if line == "" {
			break
		}
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(line[:idx]))
		value := strings.TrimSpace(line[idx+1:])
		headers[key] = value
	}

	host, port, path, err := resolveTarget(method, target, headers)
	if err != nil {
		return nil, err
	}

	return &Request{
		Method:      method,
		Host:        host,
		Port:        port,
		Path:        path,
		Version:     version,
		RequestLine: requestLine,
		Headers:     headers,
	}, nil
}

func splitRequestLine(line string) (method, target, version string, err error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 {
		return "", "", "", errors.NewProtocolError("malformed request line: "+line, nil)
	}
	method = strings.ToUpper(parts[0])
	target = parts[1]
	version = parts[2]
	if !strings.HasPrefix(strings.ToUpper(version), "HTTP/") {
		return "", "", "", errors.NewProtocolError("unsupported version: "+version, nil)
	}
	return method, target, version, nil
}

// resolveTarget determines the destination host/port and the path to send
// upstream: from CONNECT's authority-form target, from an absolute-URI
// target, or, for origin-form targets, from the Host header.
func resolveTarget(method, target string, headers map[string]string) (host string, port int, path string, err error) {
	if method == MethodConnect {
		host, port, err = splitHostPort(target, 443)
		if err != nil {
			return "", 0, "", err
		}
		return host, port, target, nil
	}

	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		u, perr := url.Parse(target)
		if perr != nil {
			return "", 0, "", errors.NewProtocolError("invalid absolute URI: "+target, perr)
		}
		host = u.Hostname()
		if host == "" {
			return "", 0, "", errors.NewProtocolError("absolute URI missing host: "+target, nil)
		}
		if p := u.Port(); p != "" {
			port, err = strconv.Atoi(p)
			if err != nil || port < 1 || port > 65535 {
				return "", 0, "", errors.NewProtocolError("invalid port in absolute URI: "+p, err)
			}
		} else if u.Scheme == "https" {
			port = 443
		} else {
			port = 80
		}
		path = u.RequestURI()
		if path == "" {
			path = "/"
		}
		return host, port, path, nil
	}

	hostHeader := headers["host"]
	if hostHeader == "" {
		return "", 0, "", errors.NewProtocolError("no Host header and no absolute URI", nil)
	}
	host, port, err = splitHostPort(hostHeader, 80)
	if err != nil {
		return "", 0, "", err
	}
	path = target
	if path == "" {
		path = "/"
	}
	return host, port, path, nil
}

// splitHostPort splits an authority string into host and port, handling
// bracketed IPv6 literals (e.g. "[::1]:8080" or bare "[::1]") the way
// net.SplitHostPort does, and falling back to defaultPort when no port is
// present.
func splitHostPort(authority string, defaultPort int) (string, int, error) {
	if authority == "" {
		return "", 0, errors.NewProtocolError("empty authority", nil)
	}

	if strings.HasPrefix(authority, "[") && strings.HasSuffix(authority, "]") {
		host := strings.TrimSuffix(strings.TrimPrefix(authority, "["), "]")
		return host, defaultPort, nil
	}

	host, portStr, err := net.SplitHostPort(authority)
	if err != nil {
		// No usable port present (net.SplitHostPort rejects plain
		// hostnames and IPv4 literals with no colon, and unbracketed IPv6
		// literals for having too many colons).
		return authority, defaultPort, nil
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		// A non-numeric port on the right side of the split falls back to
		// the default rather than failing the request.
		return host, defaultPort, nil
	}
	if port < 1 || port > 65535 {
		return "", 0, errors.NewProtocolError("port out of range in "+authority, nil)
	}
	return host, port, nil
}
