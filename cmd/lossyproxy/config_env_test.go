package main

import (
	"os"
	"testing"
	"time"
)

func TestApplyEnvOverrides_Basic(t *testing.T) {
	base := baseConfig()

	os.Setenv("LOSSYPROXY_CLIENT_DROP", "25")
	os.Setenv("LOSSYPROXY_SERVER_ADDR", "10.0.0.7")
	os.Setenv("LOSSYPROXY_DELAY_TIME", "2s")
	os.Setenv("LOSSYPROXY_LOG_METRICS_INTERVAL", "5s")
	t.Cleanup(func() {
		os.Unsetenv("LOSSYPROXY_CLIENT_DROP")
		os.Unsetenv("LOSSYPROXY_SERVER_ADDR")
		os.Unsetenv("LOSSYPROXY_DELAY_TIME")
		os.Unsetenv("LOSSYPROXY_LOG_METRICS_INTERVAL")
	})
	if err := applyEnvOverrides(base, map[string]struct{}{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if base.clientDrop != 25 {
		t.Fatalf("expected clientDrop override, got %d", base.clientDrop)
	}
	if base.serverAddr != "10.0.0.7" {
		t.Fatalf("expected serverAddr override, got %q", base.serverAddr)
	}
	if base.delayTime != 2*time.Second {
		t.Fatalf("expected delayTime 2s got %v", base.delayTime)
	}
	if base.logMetricsEvery != 5*time.Second {
		t.Fatalf("expected logMetricsEvery 5s got %v", base.logMetricsEvery)
	}
}

func TestApplyEnvOverrides_FlagPrecedence(t *testing.T) {
	base := baseConfig()
	base.clientDrop = 10
	os.Setenv("LOSSYPROXY_CLIENT_DROP", "90")
	t.Cleanup(func() { os.Unsetenv("LOSSYPROXY_CLIENT_DROP") })

	if err := applyEnvOverrides(base, map[string]struct{}{"client-drop": {}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if base.clientDrop != 10 {
		t.Fatalf("explicit flag must win over env, got %d", base.clientDrop)
	}
}

func TestApplyEnvOverrides_BadValue(t *testing.T) {
	base := baseConfig()
	os.Setenv("LOSSYPROXY_CLIENT_PORT", "not-a-number")
	t.Cleanup(func() { os.Unsetenv("LOSSYPROXY_CLIENT_PORT") })

	if err := applyEnvOverrides(base, map[string]struct{}{}); err == nil {
		t.Fatal("expected error for unparseable env value")
	}
}
