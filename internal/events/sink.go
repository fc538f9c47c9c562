// Package events implements the proxy engine's structured event sink (C4).
//
// Every component that observes an outcome worth logging — an allowed
// exchange, a blocked request, an admission-control shed, a parse failure —
// calls into a Sink. The sink is safe for concurrent use and renders the
// canonical ALLOWED/BLOCKED text lines that operator tooling parses. Status
// and byte count are part of the ALLOWED text; timings, when present, go on
// a separate TIMING line. No structured zap fields are attached.
package events

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hallvik/gatekeeper/pkg/timing"
)

// Sink receives structured events and persists them.
type Sink interface {
	Allowed(clientIP string, clientPort int, host string, port int, requestLine, status string, bytes int64, metrics *timing.Metrics)
	Blocked(clientIP string, clientPort int, host string, port int, requestLine string)
	Info(msg string)
	Warning(msg string)
	Error(msg string)
	Sync() error
}

// ZapSink is the default Sink, backed by a zap.Logger writing to both the
// configured log file and stdout, matching the original logger's
// console+file handler pairing.
type ZapSink struct {
	logger *zap.Logger
}

// New opens (creating parent directories as needed) the log file at path and
// returns a Sink that tees every event to that file and to stdout.
func New(logFile string) (*ZapSink, error) {
	if dir := filepath.Dir(logFile); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}

	writer := zapcore.NewMultiWriteSyncer(zapcore.AddSync(file), zapcore.AddSync(os.Stdout))
	core := zapcore.NewCore(newLineEncoder(), writer, zap.NewAtomicLevelAt(zapcore.InfoLevel))

	return &ZapSink{logger: zap.New(core)}, nil
}

// Allowed records a successfully relayed or tunneled exchange. The timings,
// when present, are logged as a separate line immediately after so the
// canonical ALLOWED rendering that operator tooling parses never varies.
func (s *ZapSink) Allowed(clientIP string, clientPort int, host string, port int, requestLine, status string, bytes int64, metrics *timing.Metrics) {
	line := fmt.Sprintf("ALLOWED | %s:%d -> %s:%d | %s | %s | %d bytes",
		clientIP, clientPort, host, port, requestLine, status, bytes)
	s.logger.Info(line)

	if metrics != nil {
		s.logger.Info(fmt.Sprintf("TIMING | %s:%d -> %s:%d | tcp_connect=%s ttfb=%s total=%s",
			clientIP, clientPort, host, port,
			metrics.TCPConnect, metrics.TTFB, metrics.TotalTime))
	}
}

// Blocked records a request refused by the host filter.
func (s *ZapSink) Blocked(clientIP string, clientPort int, host string, port int, requestLine string) {
	line := fmt.Sprintf("BLOCKED | %s:%d -> %s:%d | %s", clientIP, clientPort, host, port, requestLine)
	s.logger.Warn(line)
}

// Info records an informational event.
func (s *ZapSink) Info(msg string) { s.logger.Info(msg) }

// Warning records a warning event (e.g. admission-control shed).
func (s *ZapSink) Warning(msg string) { s.logger.Warn(msg) }

// Error records an error event.
func (s *ZapSink) Error(msg string) { s.logger.Error(msg) }

// Sync flushes any buffered log entries.
func (s *ZapSink) Sync() error {
	return s.logger.Sync()
}
