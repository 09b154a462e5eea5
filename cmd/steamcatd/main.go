package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/steamcat/steamcat/internal/cmclient"
	"github.com/steamcat/steamcat/internal/daemon"
	"github.com/steamcat/steamcat/internal/logging"
)

var (
	version = "head" // set by -ldflags on release builds

	app = kingpin.New("steamcatd", "Credential-hiding Steam catalog proxy")

	verbose = app.Flag("verbose", "Enable debug-level logging").Short('v').Bool()

	registerSvc = app.Flag("register-svc", "Windows only: register as a Windows service").Bool()
	runSvc      = app.Flag("run-svc", "Windows only: run as the registered Windows service").Bool()
)

func main() {
	kingpin.MustParse(app.Parse(os.Args[1:]))

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logging.Init(level)
	log := slog.Default()

	if cmclient.Default == nil {
		log.Error("no CM provider registered; build steamcatd with a provider package imported for its init() side effect")
		os.Exit(1)
	}
	daemon.Version = version

	if runWindowsService(log) {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Info("received shutdown signal")
		cancel()
	}()

	d := daemon.New(cmclient.Default, log)
	if err := d.Run(ctx); err != nil {
		log.Error("fatal error", "err", err)
		os.Exit(1)
	}
}
