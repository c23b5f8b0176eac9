package pipeline

import (
	"errors"

	"github.com/kstaniek/lossyproxy/internal/metrics"
)

// Sentinel errors used for wrapping so callers can classify via errors.Is.
var (
	ErrRead  = errors.New("read")
	ErrWrite = errors.New("write")
)

// mapErrToMetric maps a wrapped sentinel error to a metrics label,
// distinguishing direction so the two pipelines' failures are counted
// separately.
func mapErrToMetric(dir string, err error) string {
	switch {
	case errors.Is(err, ErrRead):
		if dir == "client2server" {
			return metrics.ErrClientRead
		}
		return metrics.ErrServerRead
	case errors.Is(err, ErrWrite):
		if dir == "client2server" {
			return metrics.ErrServerWrite
		}
		return metrics.ErrClientWrite
	default:
		return "other"
	}
}
