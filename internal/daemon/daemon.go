// Package daemon wires the catalog store, session manager, MRC cache,
// sign-in bridge, and HTTP server into one running process, and owns the
// startup/shutdown sequencing described across spec.md §4 and §5.
package daemon

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/steamcat/steamcat/internal/catalog"
	"github.com/steamcat/steamcat/internal/cmclient"
	"github.com/steamcat/steamcat/internal/httpapi"
	"github.com/steamcat/steamcat/internal/mrc"
	"github.com/steamcat/steamcat/internal/platform"
	"github.com/steamcat/steamcat/internal/signin"
	"github.com/steamcat/steamcat/internal/statefile"
)

// Version is set by cmd/steamcatd at startup from its own build-time
// version string.
var Version = "dev"

// Daemon is one running instance of the process, from config load through
// a clean or fatal shutdown.
type Daemon struct {
	log      *slog.Logger
	provider cmclient.Provider

	store    *catalog.Store
	manager  *catalog.Manager
	mrcCache *mrc.Cache
	server   *http.Server
	listener net.Listener

	configDir string
	stateDir  string
}

func New(provider cmclient.Provider, log *slog.Logger) *Daemon {
	return &Daemon{provider: provider, log: log}
}

// Run performs the full startup sequence and blocks serving HTTP until ctx
// is canceled, then runs the shutdown sequence. It returns a non-nil error
// only for the fatal cases spec.md §7 calls out (bad configuration,
// unreadable state, a listener that fails to bind, or an upstream fatal
// failure reported by the session manager).
func (d *Daemon) Run(ctx context.Context) error {
	configDir, err := platform.ConfigDir()
	if err != nil {
		return errors.Wrap(err, "resolving config directory")
	}
	stateDir, err := platform.StateDir()
	if err != nil {
		return errors.Wrap(err, "resolving state directory")
	}
	d.configDir = configDir
	d.stateDir = stateDir

	settings, err := statefile.LoadSettings(d.configDir)
	if err != nil {
		return errors.Wrap(err, "loading settings.json")
	}
	listenSpec, err := statefile.ParseListenEndpoint(settings.ListenEndpoint)
	if err != nil {
		return errors.Wrap(err, "parsing listen_endpoint")
	}

	persisted, err := statefile.Load(d.stateDir)
	if err != nil {
		return errors.Wrap(err, "loading state.json")
	}

	d.store = catalog.New(d.log)
	loadedIDs := catalog.LoadState(d.store, persisted, time.Now())
	if len(loadedIDs) == 0 {
		// spec.md §3: the process leaves setup iff num_ready_accs ==
		// num_accounts; with zero accounts that's vacuously already true.
		d.store.SetStatus(catalog.StatusRunning)
	}

	d.manager = catalog.NewManager(d.store, d.provider, d.stateDir, d.log)
	d.mrcCache = mrc.New()

	hostname, _ := os.Hostname()
	onAccepted := func(steamID uint64, token string, info cmclient.TokenInfo) {
		d.manager.AddSignedIn(steamID, token, info, d.provider.NewSession(steamID))
	}
	bridge := signin.NewBridge(d.provider, Version, hostname, d.log, onAccepted)

	httpSrv := httpapi.NewServer(d.store, d.mrcCache, bridge, d.log)

	listener, err := d.listen(listenSpec)
	if err != nil {
		return errors.Wrap(err, "binding listener")
	}
	d.listener = listener

	d.server = &http.Server{Handler: httpSrv.Handler()}

	serveErr := make(chan error, 1)
	go func() {
		if err := d.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	d.manager.StartLoaded(loadedIDs)

	select {
	case <-ctx.Done():
		return d.shutdown()
	case fatal := <-d.manager.FatalChan():
		d.log.Error("fatal upstream error, stopping", "err", fatal.Err)
		_ = d.shutdown()
		return fatal
	case err := <-serveErr:
		_ = d.shutdown()
		return err
	}
}

func (d *Daemon) listen(spec statefile.ListenSpec) (net.Listener, error) {
	if spec.Network == "unix" {
		_ = os.Remove(spec.SocketPath)
		l, err := net.Listen("unix", spec.SocketPath)
		if err != nil {
			return nil, err
		}
		if err := platform.SetupUnixSocket(spec.SocketPath, spec.OwnerUser, spec.OwnerGroup); err != nil {
			l.Close()
			return nil, err
		}
		return l, nil
	}
	return net.Listen("tcp", spec.Address)
}

// shutdown implements spec.md §5's cancellation sequence: stop accepting
// new HTTP work, let the session manager disconnect every CM session and
// wait for the drain, then do one last state.json sync.
func (d *Daemon) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if d.server != nil {
		_ = d.server.Shutdown(shutdownCtx)
	}
	if d.manager != nil {
		if err := d.manager.Shutdown(shutdownCtx); err != nil {
			d.log.Warn("manager shutdown did not complete cleanly", "err", err)
		}
	}
	d.store.Sync(d.stateDir)
	return nil
}
