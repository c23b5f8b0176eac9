// Package pipeline implements the per-direction forwarding loop: receive,
// classify, act (drop/delay/corrupt/pass), forward, log, emit stats.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/kstaniek/lossyproxy/internal/delay"
	"github.com/kstaniek/lossyproxy/internal/impair"
	"github.com/kstaniek/lossyproxy/internal/logging"
	"github.com/kstaniek/lossyproxy/internal/metrics"
	"github.com/kstaniek/lossyproxy/internal/proxylog"
	"github.com/kstaniek/lossyproxy/internal/statshub"
	"github.com/kstaniek/lossyproxy/internal/wire"
)

// readDeadline bounds each blocking receive so ctx cancellation is checked
// between reads, rather than relying on closing the socket out from under
// the loop (the supervisor owns socket lifetime and closes it after Run
// returns).
const readDeadline = 250 * time.Millisecond

// Pipeline runs the LISTEN -> CLASSIFY -> {DROP|DELAY|CORRUPT|PASS} -> SEND
// state machine for one direction.
type Pipeline struct {
	dir        wire.Direction
	classifier *impair.Classifier
	scheduler  *delay.Scheduler
	hub        *statshub.Hub
	recvSink   *proxylog.Sink
	sentSink   *proxylog.Sink
	log        *slog.Logger
}

// Option configures a Pipeline at construction time.
type Option func(*Pipeline)

// WithImpair supplies the classifier consulted on every received packet.
func WithImpair(c *impair.Classifier) Option { return func(p *Pipeline) { p.classifier = c } }

// WithDelay supplies the scheduler used for DELAY decisions.
func WithDelay(s *delay.Scheduler) Option { return func(p *Pipeline) { p.scheduler = s } }

// WithHub supplies the stats channel events are emitted to.
func WithHub(h *statshub.Hub) Option { return func(p *Pipeline) { p.hub = h } }

// WithLog supplies the received- and sent-data CSV sinks.
func WithLog(recv, sent *proxylog.Sink) Option {
	return func(p *Pipeline) { p.recvSink = recv; p.sentSink = sent }
}

// WithLogger overrides the structured logger (defaults to logging.L()).
func WithLogger(l *slog.Logger) Option { return func(p *Pipeline) { p.log = l } }

// New constructs a Pipeline for dir with the given options applied.
func New(dir wire.Direction, opts ...Option) *Pipeline {
	p := &Pipeline{dir: dir, log: logging.L()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run blocks, forwarding datagrams from inConn toward outAddr on outConn,
// until ctx is canceled or a non-timeout read error occurs. It returns the
// terminal error, or nil on clean cancellation.
func (p *Pipeline) Run(ctx context.Context, inConn *net.UDPConn, outConn *net.UDPConn, outAddr *net.UDPAddr) error {
	buf := make([]byte, wire.PacketSize)
	dirLabel := p.dir.String()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := inConn.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
			return fmt.Errorf("%w: %v", ErrRead, err)
		}
		n, _, err := inConn.ReadFromUDP(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			wrapped := fmt.Errorf("%w: %v", ErrRead, err)
			metrics.IncError(mapErrToMetric(dirLabel, wrapped))
			return wrapped
		}

		if n < wire.PacketSize {
			// Short datagrams cannot hold a complete header+payload; drop
			// rather than forward, since treating noise bytes as a valid
			// header risks fabricating a bogus payload length downstream.
			metrics.IncMalformed(dirLabel)
			continue
		}

		pkt, err := wire.Decode(buf[:n])
		if err != nil {
			metrics.IncMalformed(dirLabel)
			continue
		}

		p.recvSink.LogReceived(p.dir, pkt)
		p.hub.Emit(statshub.ReceivedPacket)

		corrupted := false
		switch p.classifier.Classify() {
		case impair.Drop:
			p.hub.Emit(p.droppedEvent())
			metrics.IncDropped(dirLabel)
			continue
		case impair.Delay:
			p.scheduler.Schedule(pkt.Clone(), outAddr)
			p.hub.Emit(p.delayedEvent())
			metrics.IncDelayed(dirLabel, len(pkt.Payload))
			continue
		case impair.Corrupt:
			if len(pkt.Payload) > 0 {
				wire.Corrupt(pkt.Payload, pkt.Checksum)
				p.hub.Emit(statshub.CorruptedData)
				corrupted = true
			}
		}

		if err := p.send(outConn, outAddr, pkt); err != nil {
			wrapped := fmt.Errorf("%w: %v", ErrWrite, err)
			p.log.Warn("pipeline_send_failed", "direction", dirLabel, "error", err)
			metrics.IncError(mapErrToMetric(dirLabel, wrapped))
			continue
		}
		if corrupted {
			metrics.IncCorrupted(dirLabel, len(pkt.Payload))
		} else {
			metrics.IncForwarded(dirLabel, len(pkt.Payload))
		}
		p.sentSink.LogSent(p.dir, pkt)
		p.hub.Emit(statshub.SentPacket)
	}
}

func (p *Pipeline) send(outConn *net.UDPConn, outAddr *net.UDPAddr, pkt wire.Packet) error {
	_, err := outConn.WriteToUDP(wire.Encode(pkt), outAddr)
	return err
}

func (p *Pipeline) droppedEvent() statshub.Event {
	if p.dir == wire.ClientToServer {
		return statshub.DroppedClientPacket
	}
	return statshub.DroppedServerPacket
}

func (p *Pipeline) delayedEvent() statshub.Event {
	if p.dir == wire.ClientToServer {
		return statshub.DelayedClientPacket
	}
	return statshub.DelayedServerPacket
}
