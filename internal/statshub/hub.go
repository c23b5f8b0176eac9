// Package statshub implements the proxy's TCP stats-observer channel: a
// single-slot broadcaster that accepts at most one connected observer and
// pushes it one event byte per packet disposition.
package statshub

import (
	"net"
	"sync"

	"github.com/kstaniek/lossyproxy/internal/logging"
	"github.com/kstaniek/lossyproxy/internal/metrics"
)

// Event is a single-byte stats code, matching the closed vocabulary the
// companion observer expects.
type Event uint8

const (
	SentPacket Event = iota
	ReceivedPacket
	ReceivedAck
	ResentPacket
	DroppedClientPacket
	DelayedClientPacket
	DroppedServerPacket
	DelayedServerPacket
	CorruptedData
)

// Hub accepts a single observer connection at a time. Connect closes and
// replaces any previous connection rather than leaking it.
type Hub struct {
	mu   sync.Mutex
	conn net.Conn
}

// New returns an empty Hub with no observer connected.
func New() *Hub { return &Hub{} }

// Connect installs c as the current observer, closing and discarding any
// previous connection first.
func (h *Hub) Connect(c net.Conn) {
	h.mu.Lock()
	prev := h.conn
	h.conn = c
	h.mu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}
	metrics.SetStatsObserverConnected(true)
	logging.L().Info("stats_observer_connected", "remote", c.RemoteAddr())
}

// IsConnected reports whether an observer is currently attached.
func (h *Hub) IsConnected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conn != nil
}

// Emit writes one event byte to the current observer, if any, holding the
// hub's mutex across the slot check and the write. Write failures are
// logged and the slot is cleared; pipelines never see the error. With no
// observer attached Emit returns at once; the write itself is a plain
// blocking write with no deadline, so a slow observer slows every emitter.
func (h *Hub) Emit(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := h.conn
	if c == nil {
		metrics.IncStatsDropped()
		return
	}
	if _, err := c.Write([]byte{byte(ev)}); err != nil {
		logging.L().Warn("stats_write_failed", "error", err)
		metrics.IncError(metrics.ErrStatsWrite)
		metrics.IncStatsDropped()
		h.conn = nil
		_ = c.Close()
		metrics.SetStatsObserverConnected(false)
		return
	}
	metrics.IncStatsEmitted()
}

// Serve runs the accept loop on ln until Accept fails (the supervisor
// closes the listener once stop is signalled), installing each accepted
// connection as the current observer. Any Accept error ends the loop; an
// error that arrives before stop is signalled is logged first.
func (h *Hub) Serve(stop <-chan struct{}, ln net.Listener) {
	for {
		c, err := ln.Accept()
		if err != nil {
			select {
			case <-stop:
				return
			default:
			}
			logging.L().Warn("stats_accept_error", "error", err)
			return
		}
		h.Connect(c)
	}
}
