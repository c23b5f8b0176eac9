// Package impair implements the proxy's per-direction impairment policy:
// given live drop/delay/corruption rates, classify a packet as
// PASS/DROP/DELAY/CORRUPT.
package impair

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"
)

// Decision is the outcome of classifying one packet.
type Decision uint8

const (
	Pass Decision = iota
	Drop
	Delay
	Corrupt
)

func (d Decision) String() string {
	switch d {
	case Drop:
		return "DROP"
	case Delay:
		return "DELAY"
	case Corrupt:
		return "CORRUPT"
	default:
		return "PASS"
	}
}

// Rates holds the five live impairment percentages, each updated by a
// single writer (the control reader) and read concurrently by both
// pipelines. Stored as int32 for sync/atomic support; values are
// interpreted as percentages in [0,100] and are not range-enforced here;
// the control reader and the configuration validation reject values
// outside that range.
type Rates struct {
	clientDrop  atomic.Int32
	serverDrop  atomic.Int32
	clientDelay atomic.Int32
	serverDelay atomic.Int32
	corruption  atomic.Int32
}

func (r *Rates) SetClientDrop(v int32)  { r.clientDrop.Store(v) }
func (r *Rates) SetServerDrop(v int32)  { r.serverDrop.Store(v) }
func (r *Rates) SetClientDelay(v int32) { r.clientDelay.Store(v) }
func (r *Rates) SetServerDelay(v int32) { r.serverDelay.Store(v) }
func (r *Rates) SetCorruption(v int32)  { r.corruption.Store(v) }

func (r *Rates) ClientDrop() int32  { return r.clientDrop.Load() }
func (r *Rates) ServerDrop() int32  { return r.serverDrop.Load() }
func (r *Rates) ClientDelay() int32 { return r.clientDelay.Load() }
func (r *Rates) ServerDelay() int32 { return r.serverDelay.Load() }
func (r *Rates) Corruption() int32  { return r.corruption.Load() }

// Snapshot is a consistent-enough-for-display copy of the five rates.
// Rates are advisory, so a transient mix across fields is harmless and no
// coordination beyond the individual atomic loads is attempted.
type Snapshot struct {
	ClientDrop  int32
	ServerDrop  int32
	ClientDelay int32
	ServerDelay int32
	Corruption  int32
}

func (r *Rates) Snapshot() Snapshot {
	return Snapshot{
		ClientDrop:  r.ClientDrop(),
		ServerDrop:  r.ServerDrop(),
		ClientDelay: r.ClientDelay(),
		ServerDelay: r.ServerDelay(),
		Corruption:  r.Corruption(),
	}
}

// Classifier draws classification decisions for one direction. Each
// pipeline owns exactly one Classifier; math/rand.Rand is not safe for
// concurrent use, so each direction gets its own generator rather than
// sharing one guarded by a single lock, avoiding contention between the
// two pipelines entirely.
type Classifier struct {
	rates *Rates
	mu    sync.Mutex
	rng   *rand.Rand
	// dropRate/delayRate are bound functions so the same Classifier code
	// serves both directions without branching on direction at classify
	// time.
	dropRate  func() int32
	delayRate func() int32
}

// NewClientToServer returns a Classifier reading the client-facing rates
// (client_drop, client_delay) plus the shared corruption rate.
func NewClientToServer(rates *Rates) *Classifier {
	return newClassifier(rates, rates.ClientDrop, rates.ClientDelay)
}

// NewServerToClient returns a Classifier reading the server-facing rates
// (server_drop, server_delay) plus the shared corruption rate.
func NewServerToClient(rates *Rates) *Classifier {
	return newClassifier(rates, rates.ServerDrop, rates.ServerDelay)
}

func newClassifier(rates *Rates, dropRate, delayRate func() int32) *Classifier {
	return &Classifier{
		rates:     rates,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		dropRate:  dropRate,
		delayRate: delayRate,
	}
}

// Classify draws one uniform integer in [0,99] and evaluates the fixed
// drop/delay/corruption threshold order. Overlap beyond 100 is clamped
// implicitly: once the cumulative threshold exceeds 99, later branches
// become unreachable.
func (c *Classifier) Classify() Decision {
	drop := c.dropRate()
	delay := c.delayRate()
	corruption := c.rates.Corruption()

	c.mu.Lock()
	r := int32(c.rng.Intn(100))
	c.mu.Unlock()

	switch {
	case r < drop:
		return Drop
	case r < drop+delay:
		return Delay
	case r < drop+delay+corruption:
		return Corrupt
	default:
		return Pass
	}
}
