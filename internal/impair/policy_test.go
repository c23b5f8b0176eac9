package impair

import "testing"

func TestClassifyAllPass(t *testing.T) {
	r := &Rates{}
	c := NewClientToServer(r)
	for i := 0; i < 50; i++ {
		if got := c.Classify(); got != Pass {
			t.Fatalf("Classify() = %v, want Pass with all-zero rates", got)
		}
	}
}

func TestClassifyAllDropAtFullRate(t *testing.T) {
	r := &Rates{}
	r.SetClientDrop(100)
	c := NewClientToServer(r)
	for i := 0; i < 50; i++ {
		if got := c.Classify(); got != Drop {
			t.Fatalf("Classify() = %v, want Drop with client_drop=100", got)
		}
	}
}

func TestClassifyAllDelayAtFullRate(t *testing.T) {
	r := &Rates{}
	r.SetClientDelay(100)
	c := NewClientToServer(r)
	for i := 0; i < 50; i++ {
		if got := c.Classify(); got != Delay {
			t.Fatalf("Classify() = %v, want Delay with client_delay=100", got)
		}
	}
}

func TestClassifyAllCorruptAtFullRate(t *testing.T) {
	r := &Rates{}
	r.SetCorruption(100)
	c := NewClientToServer(r)
	for i := 0; i < 50; i++ {
		if got := c.Classify(); got != Corrupt {
			t.Fatalf("Classify() = %v, want Corrupt with corruption=100", got)
		}
	}
}

func TestClassifyServerToClientUsesServerRates(t *testing.T) {
	r := &Rates{}
	r.SetClientDrop(100) // must not affect server direction
	r.SetServerDrop(100)
	c := NewServerToClient(r)
	for i := 0; i < 50; i++ {
		if got := c.Classify(); got != Drop {
			t.Fatalf("Classify() = %v, want Drop with server_drop=100", got)
		}
	}
}

func TestClassifyDropRateConvergence(t *testing.T) {
	const n = 10000
	for _, p := range []int32{0, 10, 50, 90, 100} {
		r := &Rates{}
		r.SetClientDrop(p)
		c := NewClientToServer(r)
		dropped := 0
		for i := 0; i < n; i++ {
			if c.Classify() == Drop {
				dropped++
			}
		}
		got := float64(dropped) / n
		want := float64(p) / 100
		if got < want-0.02 || got > want+0.02 {
			t.Fatalf("drop=%d: observed fraction %.4f outside %.2f±0.02", p, got, want)
		}
	}
}

func TestRatesSnapshot(t *testing.T) {
	r := &Rates{}
	r.SetClientDrop(1)
	r.SetServerDrop(2)
	r.SetClientDelay(3)
	r.SetServerDelay(4)
	r.SetCorruption(5)
	snap := r.Snapshot()
	want := Snapshot{ClientDrop: 1, ServerDrop: 2, ClientDelay: 3, ServerDelay: 4, Corruption: 5}
	if snap != want {
		t.Fatalf("Snapshot() = %+v, want %+v", snap, want)
	}
}

func TestDecisionString(t *testing.T) {
	cases := map[Decision]string{Pass: "PASS", Drop: "DROP", Delay: "DELAY", Corrupt: "CORRUPT"}
	for d, want := range cases {
		if got := d.String(); got != want {
			t.Fatalf("Decision(%d).String() = %q, want %q", d, got, want)
		}
	}
}
