package statshub

import (
	"net"
	"testing"
	"time"
)

func TestConnectAndEmit(t *testing.T) {
	h := New()
	srv, cli := net.Pipe()
	defer cli.Close()
	h.Connect(srv)

	if !h.IsConnected() {
		t.Fatal("IsConnected() = false after Connect")
	}

	done := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 1)
		n, _ := cli.Read(buf)
		done <- buf[:n]
	}()

	h.Emit(SentPacket)

	select {
	case got := <-done:
		if len(got) != 1 || got[0] != byte(SentPacket) {
			t.Fatalf("observer read %v, want [%d]", got, SentPacket)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for emitted event")
	}
}

func TestConnectReplacesPreviousObserver(t *testing.T) {
	h := New()
	srv1, cli1 := net.Pipe()
	defer cli1.Close()
	h.Connect(srv1)

	srv2, cli2 := net.Pipe()
	defer cli2.Close()
	h.Connect(srv2)

	// The first connection must have been closed, not left dangling.
	buf := make([]byte, 1)
	_, err := cli1.Read(buf)
	if err == nil {
		t.Fatal("expected read on replaced observer to fail, got nil error")
	}
}

func TestEmitWithoutObserverDoesNotBlock(t *testing.T) {
	h := New()
	done := make(chan struct{})
	go func() {
		h.Emit(DroppedClientPacket)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked with no observer connected")
	}
}
