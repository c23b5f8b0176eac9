package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type appConfig struct {
	listenAddr      string
	proxyClientPort int
	proxyServerPort int
	clientAddr      string
	clientPort      int
	serverAddr      string
	serverPort      int
	statsAddr       string
	controlSource   string
	clientDrop      int
	serverDrop      int
	clientDelay     int
	serverDelay     int
	corruption      int
	delayTime       time.Duration
	receivedCSVPath string
	sentCSVPath     string
	rcvBufBytes     int
	sndBufBytes     int
	logFormat       string
	logLevel        string
	metricsAddr     string
	logMetricsEvery time.Duration
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	listenAddr := flag.String("listen-addr", "0.0.0.0", "Proxy bind address for both data-plane sockets")
	proxyClientPort := flag.Int("proxy-client-port", 8000, "Proxy's client-facing bound port")
	proxyServerPort := flag.Int("proxy-server-port", 8050, "Proxy's server-facing bound port")
	clientAddr := flag.String("client-addr", "", "Real client's address (required)")
	clientPort := flag.Int("client-port", 0, "Real client's port, where replies are sent (required)")
	serverAddr := flag.String("server-addr", "", "Real server's address (required)")
	serverPort := flag.Int("server-port", 0, "Real server's port, where forwards are sent (required)")
	statsAddr := flag.String("stats-addr", ":61060", "Stats TCP listen address; empty disables")
	controlSource := flag.String("control-source", "stdin", "Control input source: stdin or a path")
	clientDrop := flag.Int("client-drop", 0, "Client-to-server drop rate percentage [0-100]")
	serverDrop := flag.Int("server-drop", 0, "Server-to-client drop rate percentage [0-100]")
	clientDelay := flag.Int("client-delay", 0, "Client-to-server delay rate percentage [0-100]")
	serverDelay := flag.Int("server-delay", 0, "Server-to-client delay rate percentage [0-100]")
	corruption := flag.Int("corruption", 0, "Corruption rate percentage [0-100], applied to both directions")
	delayTime := flag.Duration("delay-time", 5*time.Second, "Wall-clock delay applied by DELAY decisions")
	receivedCSV := flag.String("received-csv", "proxy_received_data.csv", "CSV path for received-packet events")
	sentCSV := flag.String("sent-csv", "proxy_sent_data.csv", "CSV path for sent-packet events")
	rcvBuf := flag.Int("rcv-buf-bytes", 0, "UDP receive buffer size override; 0 = OS default")
	sndBuf := flag.Int("snd-buf-bytes", 0, "UDP send buffer size override; 0 = OS default")
	logFormat := flag.String("log-format", "text", "Log format: text|json")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics HTTP listen address; empty disables")
	logMetricsEvery := flag.Duration("log-metrics-interval", 0, "If >0, periodically log metrics counters (for non-Prometheus setups)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })

	cfg.listenAddr = *listenAddr
	cfg.proxyClientPort = *proxyClientPort
	cfg.proxyServerPort = *proxyServerPort
	cfg.clientAddr = *clientAddr
	cfg.clientPort = *clientPort
	cfg.serverAddr = *serverAddr
	cfg.serverPort = *serverPort
	cfg.statsAddr = *statsAddr
	cfg.controlSource = *controlSource
	cfg.clientDrop = *clientDrop
	cfg.serverDrop = *serverDrop
	cfg.clientDelay = *clientDelay
	cfg.serverDelay = *serverDelay
	cfg.corruption = *corruption
	cfg.delayTime = *delayTime
	cfg.receivedCSVPath = *receivedCSV
	cfg.sentCSVPath = *sentCSV
	cfg.rcvBufBytes = *rcvBuf
	cfg.sndBufBytes = *sndBuf
	cfg.logFormat = *logFormat
	cfg.logLevel = *logLevel
	cfg.metricsAddr = *metricsAddr
	cfg.logMetricsEvery = *logMetricsEvery

	if *showVersion {
		return cfg, true
	}

	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		fmt.Printf("environment override error: %v\n", err)
		return nil, false
	}
	if err := cfg.validate(); err != nil {
		fmt.Printf("configuration error: %v\n", err)
		return nil, false
	}
	return cfg, false
}

// validate performs semantic validation of the parsed configuration. It
// does not open sockets or files, only checks values and ranges.
func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	if c.clientAddr == "" {
		return errors.New("client-addr is required")
	}
	if c.serverAddr == "" {
		return errors.New("server-addr is required")
	}
	if c.clientPort <= 0 {
		return errors.New("client-port is required and must be > 0")
	}
	if c.serverPort <= 0 {
		return errors.New("server-port is required and must be > 0")
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	for _, rate := range []struct {
		name string
		v    int
	}{
		{"client-drop", c.clientDrop}, {"server-drop", c.serverDrop},
		{"client-delay", c.clientDelay}, {"server-delay", c.serverDelay},
		{"corruption", c.corruption},
	} {
		if rate.v < 0 || rate.v > 100 {
			return fmt.Errorf("%s must be in [0,100] (got %d)", rate.name, rate.v)
		}
	}
	if c.delayTime <= 0 {
		return errors.New("delay-time must be > 0")
	}
	if c.rcvBufBytes < 0 || c.sndBufBytes < 0 {
		return errors.New("buffer sizes must be >= 0")
	}
	if c.logMetricsEvery < 0 {
		return errors.New("log-metrics-interval must be >= 0")
	}
	return nil
}

// applyEnvOverrides maps LOSSYPROXY_* environment variables to config
// fields unless the corresponding flag was explicitly set on the command
// line; explicit flags always win over the environment.
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }

	strField := func(flagName, envName string, dst *string) {
		if _, ok := set[flagName]; ok {
			return
		}
		if v, ok := get(envName); ok && v != "" {
			*dst = v
		}
	}
	intField := func(flagName, envName string, dst *int) {
		if _, ok := set[flagName]; ok {
			return
		}
		if v, ok := get(envName); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("invalid %s: %w", envName, err)
				}
				return
			}
			*dst = n
		}
	}
	durField := func(flagName, envName string, dst *time.Duration) {
		if _, ok := set[flagName]; ok {
			return
		}
		if v, ok := get(envName); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("invalid %s: %w", envName, err)
				}
				return
			}
			*dst = d
		}
	}

	strField("listen-addr", "LOSSYPROXY_LISTEN_ADDR", &c.listenAddr)
	intField("proxy-client-port", "LOSSYPROXY_PROXY_CLIENT_PORT", &c.proxyClientPort)
	intField("proxy-server-port", "LOSSYPROXY_PROXY_SERVER_PORT", &c.proxyServerPort)
	strField("client-addr", "LOSSYPROXY_CLIENT_ADDR", &c.clientAddr)
	intField("client-port", "LOSSYPROXY_CLIENT_PORT", &c.clientPort)
	strField("server-addr", "LOSSYPROXY_SERVER_ADDR", &c.serverAddr)
	intField("server-port", "LOSSYPROXY_SERVER_PORT", &c.serverPort)
	strField("stats-addr", "LOSSYPROXY_STATS_ADDR", &c.statsAddr)
	strField("control-source", "LOSSYPROXY_CONTROL_SOURCE", &c.controlSource)
	intField("client-drop", "LOSSYPROXY_CLIENT_DROP", &c.clientDrop)
	intField("server-drop", "LOSSYPROXY_SERVER_DROP", &c.serverDrop)
	intField("client-delay", "LOSSYPROXY_CLIENT_DELAY", &c.clientDelay)
	intField("server-delay", "LOSSYPROXY_SERVER_DELAY", &c.serverDelay)
	intField("corruption", "LOSSYPROXY_CORRUPTION", &c.corruption)
	durField("delay-time", "LOSSYPROXY_DELAY_TIME", &c.delayTime)
	strField("received-csv", "LOSSYPROXY_RECEIVED_CSV", &c.receivedCSVPath)
	strField("sent-csv", "LOSSYPROXY_SENT_CSV", &c.sentCSVPath)
	intField("rcv-buf-bytes", "LOSSYPROXY_RCV_BUF_BYTES", &c.rcvBufBytes)
	intField("snd-buf-bytes", "LOSSYPROXY_SND_BUF_BYTES", &c.sndBufBytes)
	strField("log-format", "LOSSYPROXY_LOG_FORMAT", &c.logFormat)
	strField("log-level", "LOSSYPROXY_LOG_LEVEL", &c.logLevel)
	strField("metrics-addr", "LOSSYPROXY_METRICS_ADDR", &c.metricsAddr)
	durField("log-metrics-interval", "LOSSYPROXY_LOG_METRICS_INTERVAL", &c.logMetricsEvery)

	return firstErr
}
