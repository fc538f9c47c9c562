package relay

import (
	"context"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hallvik/gatekeeper/pkg/errors"
)

// ConnectTimeout bounds dialing the origin for a CONNECT tunnel.
const ConnectTimeout = 10 * time.Second

// TunnelIdleTimeout is the read deadline each direction refreshes before
// every read of its own source; traffic in the other direction does not
// refresh it. If a direction stalls this long with no traffic at all, that
// read fails and the whole tunnel is torn down.
const TunnelIdleTimeout = 300 * time.Second

// connectEstablished is the exact acknowledgment sent to the client once
// the origin connection succeeds.
const connectEstablished = "HTTP/1.1 200 Connection Established\r\n\r\n"

// Tunnel dials host:port, acknowledges the CONNECT with the established
// response, and then copies bytes bidirectionally between client and the
// origin until either side closes, errors, or goes idle past
// TunnelIdleTimeout. Both sockets are closed as soon as either direction
// finishes, which unblocks the other direction's in-flight read.
//
// onEstablished, if non-nil, is called right after the acknowledgment is
// written and before the bidirectional copy begins, so a caller can log
// the exchange as allowed without waiting for the (possibly long-lived)
// tunnel to finish.
func Tunnel(ctx context.Context, client net.Conn, host string, port int, onEstablished func()) error {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	origin, err := net.DialTimeout("tcp", addr, ConnectTimeout)
	if err != nil {
		if isTimeout(err) {
			return errors.NewTimeoutError("connect to origin "+addr, ConnectTimeout)
		}
		return errors.NewConnectionError(host, port, err)
	}
	defer origin.Close()

	if _, err := client.Write([]byte(connectEstablished)); err != nil {
		return errors.NewIOError("writing CONNECT acknowledgment", err)
	}

	if onEstablished != nil {
		onEstablished()
	}

	var closeOnce sync.Once
	closeBoth := func() {
		closeOnce.Do(func() {
			client.Close()
			origin.Close()
		})
	}

	group, _ := errgroup.WithContext(ctx)
	group.Go(func() error {
		defer closeBoth()
		return copyIdle(origin, client)
	})
	group.Go(func() error {
		defer closeBoth()
		return copyIdle(client, origin)
	})

	return group.Wait()
}

// copyIdle copies from src to dst, refreshing src's read deadline after
// every successful read so the connection only dies on genuine idleness,
// not on the aggregate transfer time.
func copyIdle(dst io.Writer, src net.Conn) error {
	buf := make([]byte, relayChunkSize)
	for {
		if err := src.SetReadDeadline(time.Now().Add(TunnelIdleTimeout)); err != nil {
			return nil
		}

		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return nil
			}
		}
		if err != nil {
			return nil
		}
	}
}
