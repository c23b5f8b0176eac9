package proxylog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kstaniek/lossyproxy/internal/wire"
)

func TestSinkWritesHeaderThenRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.csv")
	sink, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	pkt := wire.Packet{SeqNumber: 1, AckNumber: 2, Flags: wire.FlagPSHACK, Payload: []byte("hi")}
	sink.LogReceived(wire.ClientToServer, pkt)
	sink.LogSent(wire.ServerToClient, pkt)

	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3 (header + 2 rows): %q", len(lines), string(data))
	}
	if !strings.Contains(lines[0], "timestamp") {
		t.Fatalf("first line is not a header: %q", lines[0])
	}
	if !strings.Contains(lines[1], "client2server") {
		t.Fatalf("expected client2server row, got %q", lines[1])
	}
	if !strings.Contains(lines[2], "server2client") {
		t.Fatalf("expected server2client row, got %q", lines[2])
	}
}
