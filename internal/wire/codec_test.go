package wire

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	p := Packet{
		SeqNumber:  42,
		AckNumber:  7,
		Flags:      FlagPSHACK,
		WindowSize: 5,
		Payload:    []byte("hello world"),
	}
	p.Checksum = ComputeChecksum(p.Payload)

	buf := Encode(p)
	if len(buf) != PacketSize {
		t.Fatalf("Encode: got %d bytes, want %d", len(buf), PacketSize)
	}

	got, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: unexpected error: %v", err)
	}
	if got.SeqNumber != p.SeqNumber || got.AckNumber != p.AckNumber {
		t.Fatalf("Decode: seq/ack mismatch: got %+v, want %+v", got, p)
	}
	if got.Flags != p.Flags || got.WindowSize != p.WindowSize || got.Checksum != p.Checksum {
		t.Fatalf("Decode: header field mismatch: got %+v, want %+v", got, p)
	}
	if string(got.Payload) != string(p.Payload) {
		t.Fatalf("Decode: payload mismatch: got %q, want %q", got.Payload, p.Payload)
	}
	if !Verify(got) {
		t.Fatalf("Verify: expected checksum to match after round trip")
	}
}

func TestDecodeShortPacket(t *testing.T) {
	_, err := Decode(make([]byte, PacketSize-1))
	if err == nil {
		t.Fatal("Decode: expected error for short input, got nil")
	}
}

func TestDecodeEmptyPayloadRecoversLength(t *testing.T) {
	p := Packet{SeqNumber: 1, Payload: nil}
	p.Checksum = ComputeChecksum(p.Payload)
	buf := Encode(p)

	got, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: unexpected error: %v", err)
	}
	if len(got.Payload) != 0 {
		t.Fatalf("Decode: expected empty payload, got %d bytes", len(got.Payload))
	}
}

func TestDecodeDoesNotAliasInputBuffer(t *testing.T) {
	p := Packet{SeqNumber: 1, Payload: []byte("abc")}
	p.Checksum = ComputeChecksum(p.Payload)
	buf := Encode(p)

	got, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: unexpected error: %v", err)
	}
	// Mutate the input buffer after decoding; the decoded payload must be
	// unaffected, since a delay task may hold onto it long after the
	// receive buffer has been reused for the next datagram.
	buf[HeaderSize] = 'Z'
	if got.Payload[0] != 'a' {
		t.Fatalf("Decode payload aliases input buffer: got %q", got.Payload)
	}
}

func TestComputeChecksumKnownValue(t *testing.T) {
	data := []byte{1, 2, 3}
	// c1 = (1*34 + 2*34 + 3*34) mod 256 = 204
	// c2 = 1 ^ 2 ^ 3 = 0
	// checksum = 204 * 0 = 0
	got := ComputeChecksum(data)
	if got != 0 {
		t.Fatalf("ComputeChecksum(%v) = %d, want 0", data, got)
	}
}

func TestCorruptFlipsChecksumMatch(t *testing.T) {
	payload := []byte("payload-data")
	orig := ComputeChecksum(payload)
	cp := append([]byte(nil), payload...)
	Corrupt(cp, orig)
	if ComputeChecksum(cp) == orig {
		t.Fatal("Corrupt: checksum still matches original after corruption")
	}
}

func TestCorruptSkipsEmptyPayload(t *testing.T) {
	var payload []byte
	Corrupt(payload, 0)
	if len(payload) != 0 {
		t.Fatalf("Corrupt: expected no-op on empty payload, got %v", payload)
	}
}

func TestFlagsStringUnknown(t *testing.T) {
	var f Flags = 0x7F
	if f.String() != "UNKNOWN_FLAG" {
		t.Fatalf("Flags.String() = %q, want UNKNOWN_FLAG", f.String())
	}
}

func TestDirectionString(t *testing.T) {
	if ClientToServer.String() != "client2server" {
		t.Fatalf("ClientToServer.String() = %q", ClientToServer.String())
	}
	if ServerToClient.String() != "server2client" {
		t.Fatalf("ServerToClient.String() = %q", ServerToClient.String())
	}
}
