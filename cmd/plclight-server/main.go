package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/plcworks/go-plclight-server/internal/discovery"
	"github.com/plcworks/go-plclight-server/internal/engine"
	"github.com/plcworks/go-plclight-server/internal/httpapi"
	"github.com/plcworks/go-plclight-server/internal/metrics"
)

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("plclight-server %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	if cfg == nil {
		os.Exit(1)
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)
	l.Info("build_info", "version", version, "commit", commit, "date", date)

	if cfg.serialDev == "auto" {
		dev, err := probeSerialDevice()
		if err != nil {
			l.Error("serial_probe_failed", "error", err)
			os.Exit(1)
		}
		cfg.serialDev = dev
		l.Info("serial_probe", "device", dev)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng := engine.New(
		engine.WithDevice(cfg.serialDev, cfg.baud, cfg.serialReadTO),
		engine.WithTimeout(cfg.cmdTimeout),
		engine.WithLogger(l),
	)
	reg := discovery.NewRegistry()
	srv := httpapi.NewServer(
		httpapi.WithController(eng),
		httpapi.WithListenAddr(cfg.listenAddr),
		httpapi.WithRegistry(reg),
		httpapi.WithLogger(l),
	)
	serveDone := make(chan struct{})
	go func() {
		defer close(serveDone)
		if err := srv.Serve(ctx); err != nil {
			l.Error("http_server_error", "error", err)
			cancel()
		}
	}()

	// Start mDNS advertisement once the listener is bound.
	go func() {
		if !cfg.mdnsEnable {
			return
		}
		select {
		case <-srv.Ready():
		case <-ctx.Done():
			return
		}
		// Extract port from bound address (host:port or :port)
		addr := srv.Addr()
		var portNum int
		if _, p, err := net.SplitHostPort(addr); err == nil {
			if pn, perr := strconv.Atoi(p); perr == nil {
				portNum = pn
			}
		}
		if portNum == 0 { // fallback attempt if format unexpected
			lastColon := strings.LastIndex(addr, ":")
			if lastColon >= 0 {
				if pn, perr := strconv.Atoi(addr[lastColon+1:]); perr == nil {
					portNum = pn
				}
			}
		}
		cleanupMDNS, err := startMDNS(ctx, cfg, portNum)
		if err != nil {
			l.Warn("mdns_start_failed", "error", err)
			return
		}
		l.Info("mdns_started", "service", mdnsServiceType, "name", cfg.mdnsName, "port", portNum)
		go func() { <-ctx.Done(); cleanupMDNS() }()
	}()

	// Ready when the listener is bound and the context not cancelled.
	metrics.SetReadinessFunc(func() bool {
		select {
		case <-srv.Ready():
		default:
			return false
		}
		return ctx.Err() == nil
	})
	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		srvHTTP := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = srvHTTP.Shutdown(context.Background()) }()
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	s := <-sigCh
	l.Info("shutdown_signal", "signal", s.String())
	cancel()
	// Wait for in-flight requests and discovery sessions to wind down.
	select {
	case <-serveDone:
	case <-time.After(10 * time.Second):
		l.Warn("shutdown_timeout", "sessions", reg.Count())
	}
}
