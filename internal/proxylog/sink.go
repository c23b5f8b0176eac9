// Package proxylog implements the per-event CSV log sinks for sent and
// received packets. Each sink is a mutex-guarded single writer so rows
// stay line-atomic under concurrent emitters.
package proxylog

import (
	"os"
	"sync"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/kstaniek/lossyproxy/internal/logging"
	"github.com/kstaniek/lossyproxy/internal/metrics"
	"github.com/kstaniek/lossyproxy/internal/wire"
)

// CSVEvent is one row written per packet event.
type CSVEvent struct {
	Timestamp  string `csv:"timestamp"`
	Direction  string `csv:"direction"`
	Seq        uint32 `csv:"seq"`
	Ack        uint32 `csv:"ack"`
	Flags      uint8  `csv:"flags"`
	PayloadLen int    `csv:"payload_len"`
}

// Sink serializes CSVEvent rows to an underlying file, one line per call,
// guarded by a single mutex so concurrent writers (a pipeline goroutine
// and any number of delay-task goroutines) never interleave partial lines.
type Sink struct {
	mu       sync.Mutex
	f        *os.File
	wroteHdr bool
}

// Open creates or truncates path and returns a Sink ready to append rows.
func Open(path string) (*Sink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &Sink{f: f}, nil
}

// Close flushes and closes the underlying file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}

func (s *Sink) write(ev CSVEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	if !s.wroteHdr {
		err = gocsv.Marshal([]CSVEvent{ev}, s.f)
		s.wroteHdr = true
	} else {
		err = gocsv.MarshalWithoutHeaders([]CSVEvent{ev}, s.f)
	}
	if err != nil {
		logging.L().Warn("csv_write_failed", "error", err)
		metrics.IncError(metrics.ErrCSVWrite)
	}
}

func toCSVEvent(dir wire.Direction, pkt wire.Packet) CSVEvent {
	return CSVEvent{
		Timestamp:  time.Now().Format(time.RFC3339Nano),
		Direction:  dir.String(),
		Seq:        pkt.SeqNumber,
		Ack:        pkt.AckNumber,
		Flags:      uint8(pkt.Flags),
		PayloadLen: len(pkt.Payload),
	}
}

// LogReceived appends a row recording a packet as received.
func (s *Sink) LogReceived(dir wire.Direction, pkt wire.Packet) {
	s.write(toCSVEvent(dir, pkt))
}

// LogSent appends a row recording a packet as sent (immediately or after a
// delay task fires).
func (s *Sink) LogSent(dir wire.Direction, pkt wire.Packet) {
	s.write(toCSVEvent(dir, pkt))
}
