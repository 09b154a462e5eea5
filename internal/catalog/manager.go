package catalog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/steamcat/steamcat/internal/cmclient"
)

const renewalThreshold = 7 * 24 * time.Hour

// Manager is the session manager, spec.md §4.1: it owns one goroutine per
// account, driving connect -> (renew) -> sign-in -> the catalog builder
// pipeline (§4.2) straight through, since the spec itself describes them
// as one continuous walk once an account is signed in.
type Manager struct {
	store     *Store
	provider  cmclient.Provider
	stateDir  string
	log       *slog.Logger
	scheduler *renewalScheduler

	wg      sync.WaitGroup
	rootCtx context.Context
	cancel  context.CancelFunc
	fatal   chan *Fatal
}

// Fatal is surfaced when connected(err) or an unexpected CM failure
// requires the whole process to stop, spec.md §4.1.
type Fatal struct {
	Err error
}

func (f *Fatal) Error() string { return f.Err.Error() }

func NewManager(store *Store, provider cmclient.Provider, stateDir string, log *slog.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		store:     store,
		provider:  provider,
		stateDir:  stateDir,
		log:       log,
		scheduler: newRenewalScheduler(),
		rootCtx:   ctx,
		cancel:    cancel,
		fatal:     make(chan *Fatal, 1),
	}
}

// FatalChan reports a fatal upstream error that should stop the process,
// spec.md §4.1's connected(err) / "any other failure" cases.
func (m *Manager) FatalChan() <-chan *Fatal {
	return m.fatal
}

// StartLoaded launches the per-account pipeline for every account already
// present in the store (loaded from state.json at startup).
func (m *Manager) StartLoaded(steamIDs []uint64) {
	for _, id := range steamIDs {
		m.launch(id)
	}
}

// AddSignedIn registers a freshly signed-in account (from the sign-in
// bridge) with the given, not yet connected, session and launches the
// same connect -> sign-in -> builder pipeline a loaded account runs.
func (m *Manager) AddSignedIn(steamID uint64, token string, info cmclient.TokenInfo, session cmclient.Session) {
	var a *Account
	m.store.WithCatalogLock(func(tx *Tx) {
		a = tx.AddAccount(steamID, token, info)
		a.Session = session
	})
	m.wg.Add(1)
	go m.runAccount(a)
}

func (m *Manager) launch(steamID uint64) {
	var a *Account
	m.store.WithCatalogLock(func(tx *Tx) {
		a, _ = tx.Account(steamID)
	})
	if a == nil {
		return
	}
	m.wg.Add(1)
	go m.runAccount(a)
}

func (m *Manager) fail(err error) {
	select {
	case m.fatal <- &Fatal{Err: err}:
	default:
	}
}

// runAccount is the full pipeline for a freshly-loaded account: connect,
// then renew-or-signin depending on token freshness, per spec.md §4.1.
func (m *Manager) runAccount(a *Account) {
	defer m.wg.Done()
	m.connectLoop(a)
}

// runPostSignIn runs the pipeline for an account whose session is already
// connected and authenticated, starting straight at get-licenses. It does
// not reconnect after the disconnect.
func (m *Manager) runPostSignIn(a *Account) {
	defer m.wg.Done()
	m.store.WithCatalogLock(func(tx *Tx) { tx.IncActiveConnections() })
	m.runBuilderPipeline(a)
	m.awaitDisconnectAndReconnect(a)
}

func (m *Manager) connectLoop(a *Account) {
	for {
		if m.store.Status() == StatusStopping {
			return
		}

		session := a.Session
		if session == nil {
			session = m.provider.NewSession(a.SteamID)
			a.Session = session
		}

		ctx, cancelConn := context.WithTimeout(m.rootCtx, cmclient.TimeoutConnect)
		var connErr error
		select {
		case connErr = <-session.Connect(ctx):
		case <-ctx.Done():
			connErr = ctx.Err()
		}
		cancelConn()

		if connErr != nil {
			m.log.Error("fatal: cm connect failed", "steam_id", a.SteamID, "err", connErr)
			m.fail(errors.Wrap(connErr, "cm connect failed"))
			return
		}

		m.store.WithCatalogLock(func(tx *Tx) { tx.IncActiveConnections() })
		m.log.Info("cm connected", "steam_id", a.SteamID)

		if m.onConnected(a) {
			m.awaitDisconnectAndReconnect(a)
		}

		if m.store.Status() == StatusStopping {
			return
		}

		var removed bool
		m.store.WithCatalogLock(func(tx *Tx) {
			acc, ok := tx.Account(a.SteamID)
			removed = !ok || acc.Removal == RemovalRemoveNow
		})
		if removed {
			return
		}
		// spec.md §4.1 disconnected: reconnect the same session unless stopping.
	}
}

// onConnected implements spec.md §4.1's connected(ok) branch and returns
// whether the pipeline should continue waiting on disconnect (false means
// sign-in itself failed fatally and the caller should not proceed).
func (m *Manager) onConnected(a *Account) bool {
	if !a.TokenInfo.Renewable {
		return m.signIn(a)
	}
	if time.Until(a.TokenInfo.Expiry) > renewalThreshold {
		m.armRenewal(a)
		return m.signIn(a)
	}
	return m.renewThenSignIn(a)
}

func (m *Manager) armRenewal(a *Account) {
	at := a.TokenInfo.Expiry.Add(-renewalThreshold)
	m.scheduler.schedule(a.SteamID, at, func() { m.onRenewalDue(a) })
}

func (m *Manager) onRenewalDue(a *Account) {
	if m.store.Status() == StatusStopping {
		return
	}
	if a.Session == nil {
		return
	}
	ctx, cancel := context.WithTimeout(m.rootCtx, cmclient.TimeoutRenew)
	defer cancel()
	var res cmclient.RenewTokenResult
	select {
	case res = <-a.Session.RenewToken(ctx, a.Token):
	case <-ctx.Done():
		res.Err = ctx.Err()
	}
	m.handleRenewResult(a, res)
}

func (m *Manager) renewThenSignIn(a *Account) bool {
	ctx, cancel := context.WithTimeout(m.rootCtx, cmclient.TimeoutRenew)
	defer cancel()
	var res cmclient.RenewTokenResult
	select {
	case res = <-a.Session.RenewToken(ctx, a.Token):
	case <-ctx.Done():
		res.Err = ctx.Err()
	}
	m.handleRenewResult(a, res)
	return m.signIn(a)
}

// handleRenewResult implements spec.md §4.1's renew-token result handling.
func (m *Manager) handleRenewResult(a *Account, res cmclient.RenewTokenResult) {
	if res.Err != nil {
		m.log.Warn("token renewal failed", "steam_id", a.SteamID, "err", res.Err)
		a.Session.Disconnect()
		return
	}
	if res.NewToken == "" {
		return
	}
	m.store.WithCatalogLock(func(tx *Tx) {
		a.Token = res.NewToken
		a.TokenInfo = cmclient.TokenInfo{Expiry: res.NewExpiry, Renewable: true}
		tx.MarkStateDirty()
	})
	m.armRenewal(a)
	a.Session.Disconnect()
}

// signIn implements spec.md §4.1's sign-in result handling, returning
// whether the caller should continue to the disconnect-wait (true) or a
// fatal error already terminated the pipeline (false). An invalidated
// token also returns true, so the disconnect handler can erase the
// account.
func (m *Manager) signIn(a *Account) bool {
	ctx, cancel := context.WithTimeout(m.rootCtx, cmclient.TimeoutSignIn)
	defer cancel()
	var signInErr error
	select {
	case signInErr = <-a.Session.SignIn(ctx, a.Token):
	case <-ctx.Done():
		signInErr = ctx.Err()
	}

	if signInErr == nil {
		m.runBuilderPipeline(a)
		return true
	}

	cmErr, _ := signInErr.(*cmclient.Error)
	switch {
	case cmErr != nil && (cmErr.Result == cmclient.ResultAccessDenied || cmErr.Result == cmclient.ResultInvalidSignature):
		m.onTokenInvalidated(a)
		return true
	case cmErr != nil && cmErr.Result == cmclient.ResultServiceUnavailable:
		a.Session.Disconnect()
		return true
	default:
		m.log.Error("fatal: sign-in failed", "steam_id", a.SteamID, "err", signInErr)
		m.fail(errors.Wrap(signInErr, "sign-in failed"))
		return false
	}
}

// onTokenInvalidated implements spec.md §4.1's access-denied/
// invalid-signature branch.
func (m *Manager) onTokenInvalidated(a *Account) {
	var wasLastInSetup bool
	m.store.WithCatalogLock(func(tx *Tx) {
		a.Removal = RemovalPendingRemove
		tx.MarkStateDirty()
		if tx.Status() == StatusSetup {
			wasLastInSetup = tx.MarkAccountReady(a)
		}
	})

	if wasLastInSetup {
		m.store.SetStatus(StatusRunning)
		m.store.Sync(m.stateDir)
	} else if m.store.Status() == StatusRunning {
		m.store.WithCatalogLock(func(tx *Tx) { tx.RemoveAccount(a.SteamID) })
		m.store.Sync(m.stateDir)
	}

	a.Session.Disconnect()
}

// awaitDisconnectAndReconnect implements spec.md §4.1's `disconnected`
// handler.
func (m *Manager) awaitDisconnectAndReconnect(a *Account) {
	<-a.Session.Disconnected()

	var shouldErase bool
	m.store.WithCatalogLock(func(tx *Tx) {
		tx.DecActiveConnections()
		acc, ok := tx.Account(a.SteamID)
		if ok && acc.Removal == RemovalPendingRemove {
			acc.Removal = RemovalRemoveNow
			shouldErase = true
		}
	})

	if shouldErase {
		m.store.WithCatalogLock(func(tx *Tx) { tx.RemoveAccount(a.SteamID) })
		m.store.Sync(m.stateDir)
		if m.scheduler != nil {
			m.scheduler.cancelFor(a.SteamID)
		}
	}
}

// Shutdown implements spec.md §5's cancellation sequence: stop issuing
// new work, disconnect every session, and wait for the active-connection
// counter to reach zero.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.store.SetStatus(StatusStopping)
	m.cancel()

	m.store.WithCatalogLock(func(tx *Tx) {
		for _, a := range tx.Accounts() {
			if a.Session != nil {
				a.Session.Disconnect()
			}
		}
	})

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	m.scheduler.stop()
	return nil
}
