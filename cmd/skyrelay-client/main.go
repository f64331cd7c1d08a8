// Command skyrelay-client joins a group-flying session: it reports the
// local aircraft's position to a hub and tracks every other member's
// predicted position, pushing updates into a simulator data provider.
// Lacking a real simulator integration, it defaults to a procedurally
// generated demo flight so the session can be exercised standalone.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"skyrelay/internal/clientlink"
	"skyrelay/internal/simdata"
	"skyrelay/internal/updatecheck"
)

func main() {
	var cfg clientlink.Config
	var centerLat, centerLon, radiusKm, altitude float64
	var repoSlug string
	var checkUpdates bool

	flag.StringVar(&cfg.HubAddr, "hub", "127.0.0.1:6886", "hub UDP address to join")
	flag.StringVar(&cfg.Name, "name", "Pilot", "pilot name announced to the session")
	flag.StringVar(&cfg.Callsign, "callsign", "N12345", "callsign announced to the session")
	flag.StringVar(&cfg.Passcode, "passcode", "", "opaque session passcode, carried but not validated")
	flag.StringVar(&cfg.PacketLogPath, "packet-log", "", "path to an optional wire trace file")
	flag.StringVar(&cfg.HistoryPath, "history", "", "path to an optional SQLite session-history database")
	flag.Float64Var(&centerLat, "demo-lat", 37.615, "demo flight's circling center latitude")
	flag.Float64Var(&centerLon, "demo-lon", -122.389, "demo flight's circling center longitude")
	flag.Float64Var(&radiusKm, "demo-radius-km", 5, "demo flight's circling radius in km")
	flag.Float64Var(&altitude, "demo-altitude-m", 1500, "demo flight's altitude in metres")
	flag.BoolVar(&checkUpdates, "check-updates", true, "check for a newer release at startup")
	flag.StringVar(&repoSlug, "repo", "FerrLab/skyrelay", "GitHub owner/repo slug used for the update check")
	verbose := flag.Bool("verbose", false, "enable debug-level logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	cfg.Logger = logger
	cfg.Provider = simdata.NewDemo(cfg.Name, centerLat, centerLon, radiusKm, altitude)

	if checkUpdates {
		go runUpdateCheck(logger, repoSlug)
	}

	link, err := clientlink.New(cfg)
	if err != nil {
		logger.Error("skyrelay-client: failed to start", "error", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("skyrelay-client: leaving session")
	link.LeaveSession()
	if err := link.Shutdown(); err != nil {
		logger.Error("skyrelay-client: shutdown error", "error", err)
		os.Exit(1)
	}
}

func runUpdateCheck(logger *slog.Logger, repoSlug string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := updatecheck.Check(ctx, version, repoSlug)
	if err != nil {
		logger.Debug("skyrelay-client: update check failed", "error", err)
		return
	}
	if result.UpdateAvailable {
		logger.Info("update available", "current", result.CurrentVersion, "latest", result.LatestVersion, "url", result.ReleaseURL)
	}
}

// version is overridden at build time via -ldflags "-X main.version=...".
var version = "dev"
