// Package relay implements the two ways an allowed request reaches its
// origin: a streaming HTTP relay (C5) for ordinary methods, and a
// bidirectional CONNECT tunnel (C6) for HTTPS.
package relay

import (
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/hallvik/gatekeeper/pkg/errors"
	"github.com/hallvik/gatekeeper/pkg/timing"
)

// HTTPConnectTimeout bounds dialing the origin for a plain HTTP request.
const HTTPConnectTimeout = 30 * time.Second

const relayChunkSize = 4096

// HTTPResult summarizes a completed HTTP relay for the event sink.
type HTTPResult struct {
	StatusCode   string
	BytesRelayed int64
	Metrics      timing.Metrics
}

// HTTP dials host:port and relays raw (the full request, already read off
// the client) to it, streaming the response back to client as it arrives
// without buffering the whole thing. The response status code is scraped
// from the first chunk and falls back to "000" if it can't be found.
func HTTP(client net.Conn, host string, port int, raw []byte) (HTTPResult, error) {
	timer := timing.NewTimer()

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	timer.StartTCP()
	origin, err := net.DialTimeout("tcp", addr, HTTPConnectTimeout)
	timer.EndTCP()
	if err != nil {
		if isTimeout(err) {
			return HTTPResult{}, errors.NewTimeoutError("connect to origin "+addr, HTTPConnectTimeout)
		}
		return HTTPResult{}, errors.NewConnectionError(host, port, err)
	}
	defer origin.Close()

	if err := origin.SetDeadline(time.Now().Add(HTTPConnectTimeout)); err != nil {
		return HTTPResult{}, errors.NewIOError("setting origin deadline", err)
	}

	if _, err := origin.Write(raw); err != nil {
		if isTimeout(err) {
			return HTTPResult{}, errors.NewTimeoutError("writing request to origin "+addr, HTTPConnectTimeout)
		}
		return HTTPResult{}, errors.NewIOError("writing request to origin", err)
	}

	result := HTTPResult{StatusCode: "000"}
	buf := make([]byte, relayChunkSize)
	first := true

	timer.StartTTFB()
	for {
		n, rerr := origin.Read(buf)
		if n > 0 {
			if first {
				result.StatusCode = extractStatusCode(buf[:n])
				timer.EndTTFB()
				first = false
			}
			if _, werr := client.Write(buf[:n]); werr != nil {
				return result, errors.NewIOError("writing response to client", werr)
			}
			result.BytesRelayed += int64(n)
		}
		if rerr != nil {
			// Once some of the response has already reached the client, a
			// timeout or error response can no longer be sent: the client
			// has a partial response in hand already. Only surface an error
			// if nothing was relayed yet.
			if first && rerr != io.EOF {
				if isTimeout(rerr) {
					return result, errors.NewTimeoutError("reading response from origin "+addr, HTTPConnectTimeout)
				}
				return result, errors.NewIOError("reading response from origin", rerr)
			}
			break
		}
	}
	if first {
		timer.EndTTFB()
	}

	result.Metrics = timer.GetMetrics()
	return result, nil
}

// extractStatusCode scrapes the status code token out of a response's
// first chunk, falling back to "000" if the chunk doesn't look like a
// status line.
func extractStatusCode(chunk []byte) string {
	line := chunk
	if idx := indexCRLF(chunk); idx >= 0 {
		line = chunk[:idx]
	}
	fields := strings.Fields(string(line))
	if len(fields) >= 2 && strings.HasPrefix(fields[0], "HTTP") {
		return fields[1]
	}
	return "000"
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

func indexCRLF(b []byte) int {
	for i := 0; i+1 < len(b); i++ {
		if b[i] == '\r' && b[i+1] == '\n' {
			return i
		}
	}
	return -1
}
