// Package engine implements the accept loop and supervisor (C7): binding
// the listening socket, admitting connections under a bounded concurrency
// limit, and wiring each connection through the request reader, parser,
// host filter, and the matching relay.
package engine

import (
	"context"
	"io"
	"net"
	"strconv"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/hallvik/gatekeeper/internal/config"
	"github.com/hallvik/gatekeeper/internal/events"
	"github.com/hallvik/gatekeeper/internal/httpmsg"
	"github.com/hallvik/gatekeeper/internal/reqread"
	"github.com/hallvik/gatekeeper/internal/relay"
	"github.com/hallvik/gatekeeper/pkg/buffer"
	"github.com/hallvik/gatekeeper/pkg/errors"
)

// acceptPollInterval bounds how long Accept blocks before the loop checks
// ctx again, so shutdown is noticed promptly instead of waiting for the
// next inbound connection.
const acceptPollInterval = time.Second

// blockedResponse is the exact byte-for-byte 403 sent for a blocked host.
const blockedResponse = "HTTP/1.1 403 Forbidden\r\n" +
	"Content-Type: text/plain\r\n" +
	"Content-Length: 13\r\n" +
	"Connection: close\r\n" +
	"\r\n" +
	"Access Denied"

const gatewayTimeoutResponse = "HTTP/1.1 504 Gateway Timeout\r\n\r\n"
const badGatewayResponse = "HTTP/1.1 502 Bad Gateway\r\n\r\n"

// requestBufferMemoryLimit is the in-memory ceiling for a single request's
// accumulated bytes before the buffer spills to disk. Headers are capped at
// reqread.MaxRequestBytes, but a declared Content-Length body is read in
// full regardless of that cap, so a large upload does spill in practice.
const requestBufferMemoryLimit = 1 << 20

// Engine owns the listening socket and the admission semaphore, and
// dispatches accepted connections to per-connection handlers.
type Engine struct {
	cfg    config.Config
	sink   events.Sink
	filter Filter
	sem    *semaphore.Weighted
}

// Filter is the subset of *filter.Filter the engine depends on, so tests
// can substitute a fake rule source.
type Filter interface {
	IsBlocked(host string) bool
	ReloadIfChanged() bool
}

// New builds an Engine from cfg, using sink for every logged event and f as
// the host filter.
func New(cfg config.Config, sink events.Sink, f Filter) *Engine {
	return &Engine{
		cfg:    cfg,
		sink:   sink,
		filter: f,
		sem:    semaphore.NewWeighted(int64(cfg.ThreadPoolSize)),
	}
}

// Run binds the listener and accepts connections until ctx is canceled. It
// returns the bind error, if any, or nil on a clean shutdown once every
// in-flight handler has finished its exchange.
func (e *Engine) Run(ctx context.Context) error {
	addr := net.JoinHostPort(e.cfg.Host, strconv.Itoa(e.cfg.Port))
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	defer ln.Close()
	// Reclaiming every admission permit waits for in-flight handlers.
	defer e.sem.Acquire(context.Background(), int64(e.cfg.ThreadPoolSize))

	e.sink.Info("proxy server started on " + addr)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}

		if tl, ok := ln.(*net.TCPListener); ok {
			tl.SetDeadline(time.Now().Add(acceptPollInterval))
		}

		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			e.sink.Error("accept: " + err.Error())
			continue
		}

		if !e.sem.TryAcquire(1) {
			e.sink.Warning("connection rejected: thread pool full")
			conn.Close()
			continue
		}

		go e.handle(ctx, conn)
	}
}

func (e *Engine) handle(ctx context.Context, conn net.Conn) {
	defer e.sem.Release(1)
	defer func() {
		if r := recover(); r != nil {
			e.sink.Error("panic in connection handler")
		}
	}()
	defer conn.Close()

	clientIP, clientPortStr, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		clientIP, clientPortStr = conn.RemoteAddr().String(), "0"
	}
	clientPort, _ := strconv.Atoi(clientPortStr)

	buf := buffer.New(requestBufferMemoryLimit)
	defer buf.Close()

	if err := reqread.Read(conn, buf); err != nil {
		return
	}
	if buf.Size() == 0 {
		return
	}

	raw, err := requestBytes(buf)
	if err != nil {
		e.sink.Error("reading accumulated request: " + err.Error())
		return
	}

	req, err := httpmsg.Parse(raw)
	if err != nil {
		e.sink.Error("failed to parse request from " + clientIP)
		return
	}

	e.filter.ReloadIfChanged()

	if e.filter.IsBlocked(req.Host) {
		e.sink.Blocked(clientIP, clientPort, req.Host, req.Port, req.RequestLine)
		conn.Write([]byte(blockedResponse))
		return
	}

	if req.Method == httpmsg.MethodConnect {
		logAllowed := func() {
			e.sink.Allowed(clientIP, clientPort, req.Host, req.Port, req.RequestLine, "200", 0, nil)
		}
		if err := relay.Tunnel(ctx, conn, req.Host, req.Port, logAllowed); err != nil {
			e.sink.Error("CONNECT to " + req.Host + ": " + err.Error())
			conn.Write([]byte(gatewayResponseFor(err)))
		}
		return
	}

	result, err := relay.HTTP(conn, req.Host, req.Port, raw)
	if err != nil {
		e.sink.Error("forwarding request to " + req.Host + ": " + err.Error())
		conn.Write([]byte(gatewayResponseFor(err)))
		return
	}
	e.sink.Allowed(clientIP, clientPort, req.Host, req.Port, req.RequestLine, result.StatusCode, result.BytesRelayed, &result.Metrics)
}

// requestBytes returns the full accumulated request. buf.Bytes() is empty
// once a request has spilled to disk, so a spilled request is read back in
// through buf.Reader() instead.
func requestBytes(buf *buffer.Buffer) ([]byte, error) {
	if !buf.IsSpilled() {
		return buf.Bytes(), nil
	}

	r, err := buf.Reader()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// gatewayResponseFor picks 504 for an origin-connect timeout and 502 for
// any other relay failure, matching the origin's timeout-vs-other-error
// branching.
func gatewayResponseFor(err error) string {
	if errors.IsTimeoutError(err) {
		return gatewayTimeoutResponse
	}
	return badGatewayResponse
}
