// Package delay implements the proxy's delay scheduler: each scheduled
// packet becomes its own independent, unjoined goroutine that sleeps and
// then sends. Never a shared worker queue, since a shared queue would
// serialize delayed sends and defeat the point of letting them progress
// concurrently with the pipelines.
package delay

import (
	"net"
	"time"

	"github.com/kstaniek/lossyproxy/internal/logging"
	"github.com/kstaniek/lossyproxy/internal/metrics"
	"github.com/kstaniek/lossyproxy/internal/proxylog"
	"github.com/kstaniek/lossyproxy/internal/statshub"
	"github.com/kstaniek/lossyproxy/internal/wire"
)

// Scheduler spawns delay tasks for one direction. It holds only its
// dependencies, with no pool, tracking array, or cap on outstanding tasks.
// The number of in-flight delay goroutines is bounded only by memory:
// under sustained high delay rates, outstanding delay goroutines
// accumulate without limit.
type Scheduler struct {
	conn      *net.UDPConn
	hub       *statshub.Hub
	sink      *proxylog.Sink
	dir       wire.Direction
	delayTime time.Duration
	sentEvent statshub.Event
}

// New returns a Scheduler that sends delayed packets on conn, reports to
// hub and sink, using delayTime as the fixed wait (5s when delayTime is
// zero or negative).
func New(conn *net.UDPConn, hub *statshub.Hub, sink *proxylog.Sink, dir wire.Direction, delayTime time.Duration) *Scheduler {
	if delayTime <= 0 {
		delayTime = 5 * time.Second
	}
	return &Scheduler{conn: conn, hub: hub, sink: sink, dir: dir, delayTime: delayTime, sentEvent: statshub.SentPacket}
}

// Schedule spawns one goroutine that sleeps delayTime, then sends pkt to
// dest. pkt is passed by value: Go's value-copy semantics give the
// byte-wise-copy guarantee required here for free, as long as the caller
// passes a packet whose Payload was never sliced from a reused buffer;
// wire.Decode's always-fresh allocation guarantees exactly that upstream.
func (s *Scheduler) Schedule(pkt wire.Packet, dest *net.UDPAddr) {
	go func() {
		time.Sleep(s.delayTime)

		buf := wire.Encode(pkt)
		if _, err := s.conn.WriteToUDP(buf, dest); err != nil {
			logging.L().Warn("delay_send_failed", "direction", s.dir, "error", err)
			metrics.IncError(errLabel(s.dir))
			return
		}
		metrics.IncForwarded(s.dir.String(), len(pkt.Payload))
		s.hub.Emit(s.sentEvent)
		s.sink.LogSent(s.dir, pkt)
	}()
}

func errLabel(dir wire.Direction) string {
	if dir == wire.ClientToServer {
		return metrics.ErrServerWrite
	}
	return metrics.ErrClientWrite
}
