// Command skyrelay-hub runs the session hub: it accepts REPORT/LEAVING
// datagrams from clients and periodically broadcasts WORLDSTATE.
package main

import (
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/browser"

	"skyrelay/internal/hub"
)

func main() {
	var cfg hub.Config
	var openStatus bool

	flag.StringVar(&cfg.ListenAddr, "listen", ":6886", "UDP address to bind for session traffic")
	flag.StringVar(&cfg.Passcode, "passcode", "", "opaque session passcode, carried but not validated")
	flag.StringVar(&cfg.PacketLogPath, "packet-log", "", "path to an optional wire trace file")
	flag.StringVar(&cfg.HistoryPath, "history", "", "path to an optional SQLite session-history database")
	flag.StringVar(&cfg.StatusAddr, "status", "", "HTTP address for the read-only /roster endpoint, e.g. :6887")
	flag.BoolVar(&cfg.CheckUpdates, "check-updates", true, "check for a newer release at startup")
	flag.StringVar(&cfg.RepoSlug, "repo", "FerrLab/skyrelay", "GitHub owner/repo slug used for the update check")
	flag.BoolVar(&openStatus, "open-status", false, "open the status page in a browser once the hub is listening")
	verbose := flag.Bool("verbose", false, "enable debug-level logging")
	flag.Parse()

	cfg.Version = version
	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	cfg.Logger = logger

	h, err := hub.New(cfg)
	if err != nil {
		logger.Error("skyrelay-hub: failed to start", "error", err)
		os.Exit(1)
	}

	if openStatus && cfg.StatusAddr != "" {
		if err := browser.OpenURL("http://" + cfg.StatusAddr + "/roster"); err != nil {
			logger.Warn("skyrelay-hub: failed to open status page", "error", err)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("skyrelay-hub: shutting down")
	if err := h.Shutdown(); err != nil {
		logger.Error("skyrelay-hub: shutdown error", "error", err)
		os.Exit(1)
	}
}
