package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	matchcore "github.com/ehrlich-b/matchcore-gateway"
	"github.com/ehrlich-b/matchcore-gateway/internal/logging"
	"github.com/ehrlich-b/matchcore-gateway/internal/netio"
)

func main() {
	var (
		tcpAddr     = flag.String("tcp-addr", ":7000", "TCP listen address")
		udpAddr     = flag.String("udp-addr", ":7001", "UDP listen address")
		mcastGroup  = flag.String("multicast-group", "239.1.1.1", "Multicast group address")
		mcastPort   = flag.Int("multicast-port", 7002, "Multicast port")
		mcastTTL    = flag.Int("multicast-ttl", 1, "Multicast IP_MULTICAST_TTL")
		mcastLoop   = flag.Bool("multicast-loopback", false, "Enable IP_MULTICAST_LOOP")
		noMulticast = flag.Bool("no-multicast", false, "Disable the multicast publisher entirely")
		codec       = flag.String("codec", "binary", "Outbound wire codec: binary or csv")
		maxTCP      = flag.Int("max-tcp-clients", 1024, "Maximum tracked TCP clients")
		maxUDP      = flag.Int("max-udp-clients", 8192, "Maximum tracked UDP clients")
		metricsAddr = flag.String("metrics-addr", "", "If set, serve Prometheus metrics on this address")
		cpuProfile  = flag.String("cpuprofile", "", "If set, write a CPU profile to this file")
		verbose     = flag.Bool("v", false, "Verbose (debug) logging")
	)
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			log.Fatalf("create cpuprofile: %v", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatalf("start cpuprofile: %v", err)
		}
		defer pprof.StopCPUProfile()
	}

	cfg := matchcore.DefaultConfig()
	cfg.TCPAddr = *tcpAddr
	cfg.UDPAddr = *udpAddr
	cfg.MulticastGroup = *mcastGroup
	cfg.MulticastPort = *mcastPort
	cfg.MulticastTTL = *mcastTTL
	cfg.MulticastLoopback = *mcastLoop
	cfg.MulticastEnabled = !*noMulticast
	cfg.MaxTCPClients = *maxTCP
	cfg.MaxUDPClients = *maxUDP
	cfg.MetricsAddr = *metricsAddr

	switch *codec {
	case "csv":
		cfg.OutputCodec = netio.CodecCSV
	case "binary":
		cfg.OutputCodec = netio.CodecBinary
	default:
		log.Fatalf("invalid -codec %q: want binary or csv", *codec)
	}

	gw, err := matchcore.NewGateway(cfg, matchcore.NullEngine{})
	if err != nil {
		logger.Error("failed to construct gateway", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := gw.Start(ctx); err != nil {
		logger.Error("failed to start gateway", "error", err)
		os.Exit(1)
	}

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		registry := prometheus.NewRegistry()
		registry.MustRegister(gw.Collector())
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		metricsServer = &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			logger.Info("serving metrics", "addr", cfg.MetricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	fmt.Printf("matchcore-gateway listening: tcp=%s udp=%s multicast=%s:%d (enabled=%v)\n",
		cfg.TCPAddr, cfg.UDPAddr, cfg.MulticastGroup, cfg.MulticastPort, cfg.MulticastEnabled)
	fmt.Printf("Press Ctrl+C to stop...\n")
	fmt.Printf("Send SIGUSR1 (kill -USR1 %d) to dump goroutine stacks\n", os.Getpid())

	stackDumpCh := make(chan os.Signal, 1)
	signal.Notify(stackDumpCh, syscall.SIGUSR1)
	go func() {
		for range stackDumpCh {
			buf := make([]byte, 1<<20)
			n := runtime.Stack(buf, true)
			fmt.Fprintf(os.Stderr, "\n=== GOROUTINE STACK DUMP ===\n%s\n=== END ===\n\n", buf[:n])
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("received shutdown signal")
	cancel()

	stopped := make(chan struct{})
	go func() {
		gw.Stop()
		if metricsServer != nil {
			_ = metricsServer.Close()
		}
		close(stopped)
	}()

	select {
	case <-stopped:
		logger.Info("gateway stopped cleanly")
	case <-time.After(5 * time.Second):
		logger.Info("shutdown timeout, forcing exit")
	}

	fmt.Println(gw.Stats().Dump())
}
