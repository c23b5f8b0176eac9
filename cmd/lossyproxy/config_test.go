package main

import (
	"testing"
	"time"
)

func baseConfig() *appConfig {
	return &appConfig{
		listenAddr:      "0.0.0.0",
		proxyClientPort: 8000,
		proxyServerPort: 8050,
		clientAddr:      "127.0.0.1",
		clientPort:      9000,
		serverAddr:      "127.0.0.1",
		serverPort:      9050,
		statsAddr:       ":61060",
		controlSource:   "stdin",
		delayTime:       5 * time.Second,
		receivedCSVPath: "proxy_received_data.csv",
		sentCSVPath:     "proxy_sent_data.csv",
		logFormat:       "text",
		logLevel:        "info",
	}
}

func TestConfigValidate_OK(t *testing.T) {
	if err := baseConfig().validate(); err != nil {
		t.Fatalf("expected ok got %v", err)
	}
}

func TestConfigValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*appConfig)
	}{
		{"missingClientAddr", func(c *appConfig) { c.clientAddr = "" }},
		{"missingServerAddr", func(c *appConfig) { c.serverAddr = "" }},
		{"missingClientPort", func(c *appConfig) { c.clientPort = 0 }},
		{"missingServerPort", func(c *appConfig) { c.serverPort = 0 }},
		{"badFormat", func(c *appConfig) { c.logFormat = "xx" }},
		{"badLevel", func(c *appConfig) { c.logLevel = "nope" }},
		{"dropTooHigh", func(c *appConfig) { c.clientDrop = 101 }},
		{"delayNegative", func(c *appConfig) { c.serverDelay = -1 }},
		{"corruptionTooHigh", func(c *appConfig) { c.corruption = 200 }},
		{"badDelayTime", func(c *appConfig) { c.delayTime = 0 }},
		{"badRcvBuf", func(c *appConfig) { c.rcvBufBytes = -1 }},
		{"badMetricsInterval", func(c *appConfig) { c.logMetricsEvery = -time.Second }},
	}
	for _, tc := range tests {
		base := baseConfig()
		tc.mod(base)
		if err := base.validate(); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}
