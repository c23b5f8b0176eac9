// Package control implements the operator-facing control plane: a blocking
// line reader that live-updates the impairment rates consulted by both
// pipelines.
package control

import (
	"bufio"
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/kstaniek/lossyproxy/internal/impair"
	"github.com/kstaniek/lossyproxy/internal/logging"
)

// Reader parses whitespace-separated "<field> <value>" lines from an
// io.Reader (typically os.Stdin, or a FIFO/file for scripted tests) and
// applies them to a shared impair.Rates.
type Reader struct {
	src   io.Reader
	rates *impair.Rates
}

// New returns a Reader that updates rates from lines read off src.
func New(src io.Reader, rates *impair.Rates) *Reader {
	return &Reader{src: src, rates: rates}
}

// Run scans lines until ctx is canceled or the source reaches EOF/an
// error. Scanning happens in a separate goroutine and Run selects on ctx,
// so Run returns as soon as ctx is canceled, even mid-read; since
// bufio.Scanner has no deadline concept, that goroutine stays blocked on
// the source until it yields a line, EOF or an error.
func (r *Reader) Run(ctx context.Context) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r.src)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			r.apply(line)
		}
	}
}

func (r *Reader) apply(line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}
	if fields[0] == "show" {
		logging.L().Info("control_show", "rates", r.rates.Snapshot())
		return
	}
	if len(fields) != 2 {
		logging.L().Warn("control_malformed_line", "line", line)
		return
	}

	v, err := strconv.Atoi(fields[1])
	if err != nil || v < 0 || v > 100 {
		logging.L().Warn("control_invalid_value", "field", fields[0], "value", fields[1])
		return
	}

	switch fields[0] {
	case "client-drop":
		r.rates.SetClientDrop(int32(v))
	case "server-drop":
		r.rates.SetServerDrop(int32(v))
	case "client-delay":
		r.rates.SetClientDelay(int32(v))
	case "server-delay":
		r.rates.SetServerDelay(int32(v))
	case "corruption":
		r.rates.SetCorruption(int32(v))
	default:
		logging.L().Warn("control_unknown_field", "field", fields[0])
		return
	}
	logging.L().Info("control_rate_updated", "field", fields[0], "value", v)
}
