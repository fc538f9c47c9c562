// Package timing provides performance measurement utilities for relayed exchanges.
package timing

import (
	"fmt"
	"time"
)

// Metrics captures timing information for one relayed exchange.
type Metrics struct {
	// TCPConnect is the time spent establishing the origin TCP connection.
	TCPConnect time.Duration `json:"tcp_connect"`

	// TTFB (Time To First Byte) is the time spent waiting for the first
	// response byte from the origin. CONNECT tunnels do not record
	// Metrics.
	TTFB time.Duration `json:"ttfb"`

	// TotalTime is the total end-to-end exchange time.
	TotalTime time.Duration `json:"total_time"`
}

// Timer helps measure exchange timings.
type Timer struct {
	start     time.Time
	tcpStart  time.Time
	tcpEnd    time.Time
	ttfbStart time.Time
	ttfbEnd   time.Time
}

// NewTimer creates a new timing measurement session.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// StartTCP marks the beginning of the origin TCP connection.
func (t *Timer) StartTCP() { t.tcpStart = time.Now() }

// EndTCP marks the end of the origin TCP connection attempt.
func (t *Timer) EndTCP() { t.tcpEnd = time.Now() }

// StartTTFB marks when we start waiting for the first response byte.
func (t *Timer) StartTTFB() { t.ttfbStart = time.Now() }

// EndTTFB marks when we receive the first response byte.
func (t *Timer) EndTTFB() { t.ttfbEnd = time.Now() }

// GetMetrics returns the calculated timing metrics.
func (t *Timer) GetMetrics() Metrics {
	m := Metrics{TotalTime: time.Since(t.start)}

	if !t.tcpStart.IsZero() && !t.tcpEnd.IsZero() {
		m.TCPConnect = t.tcpEnd.Sub(t.tcpStart)
	}
	if !t.ttfbStart.IsZero() && !t.ttfbEnd.IsZero() {
		m.TTFB = t.ttfbEnd.Sub(t.ttfbStart)
	}

	return m
}

// String provides a human-readable representation of the metrics.
func (m Metrics) String() string {
	return fmt.Sprintf("TCPConnect: %v, TTFB: %v, TotalTime: %v", m.TCPConnect, m.TTFB, m.TotalTime)
}
