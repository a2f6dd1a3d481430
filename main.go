package main

import (
	"context"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/wfunc/bb84server/broadcast"
	"github.com/wfunc/bb84server/config"
	"github.com/wfunc/bb84server/logger"
	"github.com/wfunc/bb84server/monitor"
	"github.com/wfunc/bb84server/persistence"
	"github.com/wfunc/bb84server/room"
	adminrpc "github.com/wfunc/bb84server/rpc"
	"github.com/wfunc/bb84server/server"
	"github.com/wfunc/bb84server/services"
	"github.com/wfunc/bb84server/session"
	"github.com/wfunc/bb84server/timer"
)

func main() {
	configDir := pflag.String("config", ".", "directory holding config.yaml and .env")
	httpAddr := pflag.String("http", "", "override server.http_address")
	rpcAddr := pflag.String("rpc", "", "override server.rpc_address, \"off\" disables the admin rpc")
	pflag.Parse()

	// Report startup failures before the configured logger exists
	logger.Bootstrap()

	// Load configuration
	cfg, err := config.LoadConfig(*configDir)
	if err != nil {
		logger.Log.Fatalf("Failed to load configuration: %v", err)
	}
	if *httpAddr != "" {
		cfg.Server.HTTPAddress = *httpAddr
	}
	if *rpcAddr != "" {
		cfg.Server.RPCAddress = *rpcAddr
	}

	// Initialize logger
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		logger.Log.Fatalf("Failed to initialise logger: %v", err)
	}
	defer logger.Sync()

	// Initialize round archive
	archive, err := persistence.Open(cfg.Archive)
	if err != nil {
		logger.Log.Fatalf("Failed to open %s archive: %v", cfg.Archive.Driver, err)
	}
	defer archive.Close()
	logger.Log.Infof("Round archive: %s", cfg.Archive.Driver)

	seed := cfg.Round.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	timers := timer.NewTimerManager(cfg.Round.TimerResolution)
	defer timers.Stop()

	sessions := session.NewManager()
	broadcaster := broadcast.NewSessionBroadcaster(sessions)
	metrics := monitor.NewMetrics(cfg.Metrics.Namespace)
	history := services.NewHistoryService(archive)

	r := room.NewRoom(room.Options{
		Broadcaster:      broadcaster,
		Archive:          archive,
		Metrics:          metrics,
		Source:           rand.New(rand.NewSource(seed)),
		Timers:           timers,
		AutoAdvanceDelay: cfg.Round.AutoAdvanceDelay,
	})
	defer r.Close()

	if cfg.Server.RPCAddress != "off" {
		rpcServer, err := adminrpc.NewServer(cfg.Server.RPCAddress)
		if err != nil {
			logger.Log.Fatalf("Failed to create RPC server: %v", err)
		}
		if err := rpcServer.Register(adminrpc.AdminServiceName, adminrpc.NewAdminService(r, history)); err != nil {
			logger.Log.Fatalf("Failed to register admin service: %v", err)
		}
		go rpcServer.Start()
		defer rpcServer.Stop()
	}

	gameServer := server.NewGameServer(server.Options{
		HTTPAddress:       cfg.Server.HTTPAddress,
		Room:              r,
		Sessions:          sessions,
		Broadcaster:       broadcaster,
		History:           history,
		Metrics:           metrics,
		HeartbeatInterval: cfg.Server.HeartbeatInterval,
	})

	errs := make(chan error, 1)
	go func() {
		errs <- gameServer.Start()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errs:
		if err != nil {
			logger.Log.Errorf("Server stopped: %v", err)
		}
	case s := <-sig:
		logger.Log.Infof("Received %s, shutting down", s)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := gameServer.Shutdown(ctx); err != nil {
		logger.Log.Warnf("Shutdown: %v", err)
	}
}
