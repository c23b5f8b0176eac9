// Command lossyproxy runs a deliberately-lossy UDP middlebox between a
// reliable-transport client and server, with live-updatable per-direction
// drop/delay/corruption rates and a TCP stats-observer channel.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/kstaniek/lossyproxy/internal/control"
	"github.com/kstaniek/lossyproxy/internal/delay"
	"github.com/kstaniek/lossyproxy/internal/impair"
	"github.com/kstaniek/lossyproxy/internal/metrics"
	"github.com/kstaniek/lossyproxy/internal/pipeline"
	"github.com/kstaniek/lossyproxy/internal/proxylog"
	"github.com/kstaniek/lossyproxy/internal/statshub"
	"github.com/kstaniek/lossyproxy/internal/wire"
)

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("lossyproxy %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	if cfg == nil {
		os.Exit(2)
	}

	l := setupLogger(cfg.logFormat, cfg.logLevel)

	clientConn, serverConn, err := openSockets(cfg)
	if err != nil {
		l.Error("socket_setup_failed", "error", err)
		os.Exit(1)
	}
	defer clientConn.Close()
	defer serverConn.Close()

	recvSink, err := proxylog.Open(cfg.receivedCSVPath)
	if err != nil {
		l.Error("received_csv_open_failed", "error", err)
		os.Exit(1)
	}
	defer recvSink.Close()
	sentSink, err := proxylog.Open(cfg.sentCSVPath)
	if err != nil {
		l.Error("sent_csv_open_failed", "error", err)
		os.Exit(1)
	}
	defer sentSink.Close()

	rates := &impair.Rates{}
	rates.SetClientDrop(int32(cfg.clientDrop))
	rates.SetServerDrop(int32(cfg.serverDrop))
	rates.SetClientDelay(int32(cfg.clientDelay))
	rates.SetServerDelay(int32(cfg.serverDelay))
	rates.SetCorruption(int32(cfg.corruption))

	hub := statshub.New()

	realClientAddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(cfg.clientAddr, strconv.Itoa(cfg.clientPort)))
	if err != nil {
		l.Error("client_addr_resolve_failed", "error", err)
		os.Exit(1)
	}
	realServerAddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(cfg.serverAddr, strconv.Itoa(cfg.serverPort)))
	if err != nil {
		l.Error("server_addr_resolve_failed", "error", err)
		os.Exit(1)
	}

	c2sSched := delay.New(serverConn, hub, sentSink, wire.ClientToServer, cfg.delayTime)
	s2cSched := delay.New(clientConn, hub, sentSink, wire.ServerToClient, cfg.delayTime)

	c2s := pipeline.New(wire.ClientToServer,
		pipeline.WithImpair(impair.NewClientToServer(rates)),
		pipeline.WithDelay(c2sSched),
		pipeline.WithHub(hub),
		pipeline.WithLog(recvSink, sentSink),
		pipeline.WithLogger(l),
	)
	s2c := pipeline.New(wire.ServerToClient,
		pipeline.WithImpair(impair.NewServerToClient(rates)),
		pipeline.WithDelay(s2cSched),
		pipeline.WithHub(hub),
		pipeline.WithLog(recvSink, sentSink),
		pipeline.WithLogger(l),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup

	startMetricsLogger(ctx, cfg.logMetricsEvery, l, &wg)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := c2s.Run(ctx, clientConn, serverConn, realServerAddr); err != nil {
			l.Error("client_to_server_pipeline_error", "error", err)
			cancel()
		}
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s2c.Run(ctx, serverConn, clientConn, realClientAddr); err != nil {
			l.Error("server_to_client_pipeline_error", "error", err)
			cancel()
		}
	}()

	var statsListener net.Listener
	if cfg.statsAddr != "" {
		statsListener, err = net.Listen("tcp", cfg.statsAddr)
		if err != nil {
			l.Error("stats_listen_failed", "error", err)
			os.Exit(1)
		}
		defer statsListener.Close()
		stop := make(chan struct{})
		wg.Add(1)
		go func() {
			defer wg.Done()
			go func() { <-ctx.Done(); close(stop); statsListener.Close() }()
			hub.Serve(stop, statsListener)
		}()
	}

	controlSrc, closeControl, err := openControlSource(cfg.controlSource)
	if err != nil {
		l.Error("control_source_open_failed", "error", err)
		os.Exit(1)
	}
	defer closeControl()
	ctl := control.New(controlSrc, rates)
	wg.Add(1)
	go func() {
		defer wg.Done()
		ctl.Run(ctx)
	}()

	metrics.SetReadinessFunc(func() bool { return ctx.Err() == nil })
	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		metricsSrv := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = metricsSrv.Shutdown(context.Background()) }()
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sigCh:
		l.Info("shutdown_signal", "signal", s.String())
	case <-ctx.Done():
		l.Info("shutdown_pipeline_error")
	}
	cancel()
	// Delay tasks are not joined here: they are detached goroutines (see
	// internal/delay), and any still sleeping when main returns are
	// discarded without sending.
	wg.Wait()
}

func openSockets(cfg *appConfig) (client, server *net.UDPConn, err error) {
	client, err = net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP(cfg.listenAddr), Port: cfg.proxyClientPort})
	if err != nil {
		return nil, nil, fmt.Errorf("bind client-facing socket: %w", err)
	}
	server, err = net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP(cfg.listenAddr), Port: cfg.proxyServerPort})
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("bind server-facing socket: %w", err)
	}
	if err := tuneBuffers(client, cfg.rcvBufBytes, cfg.sndBufBytes); err != nil {
		client.Close()
		server.Close()
		return nil, nil, fmt.Errorf("tune client-facing socket buffers: %w", err)
	}
	if err := tuneBuffers(server, cfg.rcvBufBytes, cfg.sndBufBytes); err != nil {
		client.Close()
		server.Close()
		return nil, nil, fmt.Errorf("tune server-facing socket buffers: %w", err)
	}
	return client, server, nil
}

// openControlSource resolves the -control-source flag to a readable
// stream: "stdin" (the default) or a file path for scripted tests.
func openControlSource(source string) (*os.File, func(), error) {
	if source == "" || source == "stdin" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(source)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}
