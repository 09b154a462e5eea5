//go:build windows

package main

import (
	"context"
	"log/slog"
	"os"

	"golang.org/x/sys/windows/svc"
	"golang.org/x/sys/windows/svc/mgr"

	"github.com/steamcat/steamcat/internal/cmclient"
	"github.com/steamcat/steamcat/internal/daemon"
)

const serviceName = "steamcatd"

// runWindowsService implements spec.md §6.5's Windows CLI contract:
// --register-svc installs the running executable as a demand-start
// service, --run-svc runs as that service and answers SCM stop/pre-shutdown
// controls, and no argument at all runs interactively exactly like Unix.
// Returns true if it fully handled one of the two service flags (the
// caller should not also run the interactive path).
func runWindowsService(log *slog.Logger) bool {
	switch {
	case *registerSvc:
		if err := registerService(); err != nil {
			log.Error("service registration failed", "err", err)
			os.Exit(1)
		}
		return true
	case *runSvc:
		runService(log)
		return true
	default:
		return false
	}
}

func registerService() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	m, err := mgr.Connect()
	if err != nil {
		return err
	}
	defer m.Disconnect()

	s, err := m.OpenService(serviceName)
	if err == nil {
		s.Close()
		return nil
	}

	s, err = m.CreateService(serviceName, exe, mgr.Config{
		StartType:   mgr.StartManual,
		DisplayName: "steamcatd",
		Description: "Credential-hiding Steam catalog proxy",
	}, "--run-svc")
	if err != nil {
		return err
	}
	defer s.Close()
	return nil
}

type windowsService struct {
	log *slog.Logger
}

func (w *windowsService) Execute(args []string, r <-chan svc.ChangeRequest, status chan<- svc.Status) (bool, uint32) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	status <- svc.Status{State: svc.StartPending}

	if cmclient.Default == nil {
		return true, 1
	}
	d := daemon.New(cmclient.Default, w.log)

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	status <- svc.Status{State: svc.Running, Accepts: svc.AcceptStop | svc.AcceptShutdown | svc.AcceptPreShutdown}

	for {
		select {
		case req := <-r:
			switch req.Cmd {
			case svc.Stop, svc.Shutdown, svc.PreShutdown:
				status <- svc.Status{State: svc.StopPending}
				cancel()
			case svc.Interrogate:
				status <- req.CurrentStatus
			}
		case err := <-done:
			if err != nil {
				w.log.Error("service run failed", "err", err)
				return true, 1
			}
			return false, 0
		}
	}
}

func runService(log *slog.Logger) {
	err := svc.Run(serviceName, &windowsService{log: log})
	if err != nil {
		log.Error("service failed", "err", err)
		os.Exit(1)
	}
}
