package catalog

import (
	"bytes"
	"context"
	"log/slog"
	"strconv"

	"github.com/steamcat/steamcat/internal/cmclient"
	"github.com/steamcat/steamcat/internal/vdf"
)

const depotKeyBurstSize = 5

// runBuilderPipeline is the per-account catalog sweep, spec.md §4.2: get
// licenses, resolve each license's package to its app/depot IDs, fetch a
// PICS access token per app, pull each app's product info for its name and
// depot list, then fetch a decryption key for every depot this account
// newly introduced to the catalog. Runs once per sign-in; the account's
// session stays connected afterward to receive manifest-request-code
// queries until it disconnects.
func (m *Manager) runBuilderPipeline(a *Account) {
	licenses, err := m.getLicenses(a)
	if err != nil {
		m.log.Warn("get licenses failed", "steam_id", a.SteamID, "err", err)
		m.finishSweep(a)
		return
	}

	packages, err := m.fetchPackages(a, licenses)
	if err != nil {
		m.log.Warn("pics packages failed", "steam_id", a.SteamID, "err", err)
		m.finishSweep(a)
		return
	}

	appIDs, appDepots := resolvePackages(packages, m.log)
	if len(appIDs) == 0 {
		m.finishSweep(a)
		return
	}

	tokens, err := m.fetchAccessTokens(a, appIDs)
	if err != nil {
		m.log.Warn("pics access tokens failed", "steam_id", a.SteamID, "err", err)
		m.finishSweep(a)
		return
	}

	apps, err := m.fetchAppInfo(a, tokens)
	if err != nil {
		m.log.Warn("pics app info failed", "steam_id", a.SteamID, "err", err)
		m.finishSweep(a)
		return
	}

	m.applyAppInfo(a, apps, appDepots, tokens)
	m.fetchPendingDepotKeys(a)
	m.finishSweep(a)
}

func (m *Manager) getLicenses(a *Account) ([]cmclient.License, error) {
	ctx, cancel := context.WithTimeout(m.rootCtx, cmclient.TimeoutLicenses)
	defer cancel()
	select {
	case res := <-a.Session.GetLicenses(ctx):
		return res.Licenses, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager) fetchPackages(a *Account, licenses []cmclient.License) (map[uint32][]byte, error) {
	ctx, cancel := context.WithTimeout(m.rootCtx, cmclient.TimeoutPICS)
	defer cancel()
	select {
	case res := <-a.Session.PICSProductInfoPackages(ctx, licenses):
		return res.Packages, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// resolvePackages decodes each package's binary-VDF payload into the app
// IDs it grants and the depot IDs each of those apps exposes, per spec.md
// GLOSSARY's description of a PICS package info document: a top-level
// "appids" array and a "depotids" array shared across the package. A
// package's depot set is treated as shared across every app it grants,
// since package info doesn't partition depots per app.
//
// A package whose payload fails to parse is logged and skipped, leaving
// the rest of the account's sweep intact. This is a deliberate departure
// from cm_callbacks.cpp's cb_package_info, which disconnects the whole CM
// client the moment one package in a response fails to parse.
func resolvePackages(packages map[uint32][]byte, log *slog.Logger) (appIDs []uint32, appDepots map[uint32][]uint32) {
	seenApps := map[uint32]struct{}{}
	var sharedDepots []uint32

	for pkgID, raw := range packages {
		root, err := vdf.ParseBinary(raw)
		if err != nil {
			log.Warn("skipping malformed PICS package", "package_id", pkgID, "err", err)
			continue
		}
		pkgNode := root.Get(strconv.FormatUint(uint64(pkgID), 10))
		if pkgNode == nil {
			for _, child := range root.Children {
				pkgNode = child
				break
			}
		}
		if pkgNode == nil {
			continue
		}

		if depotNode := pkgNode.Get("depotids"); depotNode != nil {
			for _, leaf := range depotNode.Children {
				if leaf.Field.IsString {
					continue
				}
				sharedDepots = append(sharedDepots, uint32(leaf.Field.Int32))
			}
		}

		if appNode := pkgNode.Get("appids"); appNode != nil {
			for _, leaf := range appNode.Children {
				if leaf.Field.IsString {
					continue
				}
				appID := uint32(leaf.Field.Int32)
				if _, ok := seenApps[appID]; !ok {
					seenApps[appID] = struct{}{}
					appIDs = append(appIDs, appID)
				}
			}
		}
	}

	appDepots = make(map[uint32][]uint32, len(seenApps))
	for appID := range seenApps {
		appDepots[appID] = sharedDepots
	}
	return appIDs, appDepots
}

func (m *Manager) fetchAccessTokens(a *Account, appIDs []uint32) ([]cmclient.AppAccessToken, error) {
	ctx, cancel := context.WithTimeout(m.rootCtx, cmclient.TimeoutPICS)
	defer cancel()
	select {
	case res := <-a.Session.PICSAccessTokens(ctx, appIDs):
		return res.Tokens, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager) fetchAppInfo(a *Account, tokens []cmclient.AppAccessToken) (map[uint32][]byte, error) {
	ctx, cancel := context.WithTimeout(m.rootCtx, cmclient.TimeoutPICS)
	defer cancel()
	select {
	case res := <-a.Session.PICSProductInfoApps(ctx, tokens):
		return res.Apps, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// applyAppInfo decodes each app's text-VDF product info for its display
// name and depot list (including the synthetic workshop depot, per spec.md
// GLOSSARY), records ownership in the catalog, and queues a decryption-key
// fetch for every depot this account newly introduced.
func (m *Manager) applyAppInfo(a *Account, apps map[uint32][]byte, appDepots map[uint32][]uint32, tokens []cmclient.AppAccessToken) {
	tokenByApp := make(map[uint32]uint64, len(tokens))
	for _, t := range tokens {
		tokenByApp[t.AppID] = t.AccessToken
	}

	m.store.WithCatalogLock(func(tx *Tx) {
		for appID, raw := range apps {
			name := ""
			var depotIDs []uint32

			if root, err := vdf.Parse(bytes.NewReader(raw)); err == nil {
				if n := root.Get("appinfo", "common", "name"); n != nil {
					name = n.Value
				}
				if depots := root.Get("appinfo", "depots"); depots != nil {
					for key, child := range depots.Children {
						if id, ok := parseUint32(key); ok {
							depotIDs = append(depotIDs, id)
						} else if key == "workshopdepot" {
							if id, ok := child.Uint32(); ok {
								depotIDs = append(depotIDs, id)
							}
						}
					}
				}
			}
			depotIDs = append(depotIDs, appDepots[appID]...)

			tx.SetAppName(appID, name)
			if tok, ok := tokenByApp[appID]; ok {
				tx.SetAppPICSToken(appID, tok)
			}

			for _, depotID := range dedupeUint32(depotIDs) {
				isNew := tx.AddDepotOwnership(appID, depotID, a.SteamID)
				if isNew {
					if _, ok := tx.DepotKey(depotID); !ok {
						a.PendingDepotKeys[depotID] = struct{}{}
					}
				}
			}
		}
	})
}

func dedupeUint32(ids []uint32) []uint32 {
	seen := make(map[uint32]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// fetchPendingDepotKeys walks a.PendingDepotKeys in bursts of
// depotKeyBurstSize, per spec.md §4.2, retrying a timed-out fetch
// indefinitely and silently dropping a depot whose key comes back
// steam_cm/blocked (spec.md's "tolerable blocked" case: a pre-release
// depot with no key published yet).
func (m *Manager) fetchPendingDepotKeys(a *Account) {
	for len(a.PendingDepotKeys) > 0 {
		if m.store.Status() == StatusStopping {
			return
		}

		burst := make([]uint32, 0, depotKeyBurstSize)
		for depotID := range a.PendingDepotKeys {
			burst = append(burst, depotID)
			if len(burst) == depotKeyBurstSize {
				break
			}
		}

		for _, depotID := range burst {
			a.InFlightDepotKeys[depotID] = struct{}{}
			m.fetchOneDepotKey(a, depotID)
			delete(a.InFlightDepotKeys, depotID)
			delete(a.PendingDepotKeys, depotID)
		}
	}
}

func (m *Manager) fetchOneDepotKey(a *Account, depotID uint32) {
	for {
		if m.store.Status() == StatusStopping {
			return
		}
		ctx, cancel := context.WithTimeout(m.rootCtx, cmclient.TimeoutDepotKey)
		var res cmclient.DepotKeyResult
		select {
		case res = <-a.Session.GetDepotKey(ctx, depotID):
		case <-ctx.Done():
			res.Err = ctx.Err()
		}
		cancel()

		if res.Err == nil {
			m.store.WithCatalogLock(func(tx *Tx) { tx.SetDepotKey(depotID, res.Key) })
			return
		}
		if cmclient.IsTolerableBlocked(res.Err) {
			m.log.Debug("depot key blocked, dropping", "depot_id", depotID)
			return
		}
		if res.Err == context.DeadlineExceeded {
			m.log.Debug("depot key fetch timed out, retrying", "depot_id", depotID)
			continue
		}
		m.log.Warn("depot key fetch failed", "depot_id", depotID, "err", res.Err)
		return
	}
}

// finishSweep, while the process is in setup, marks the account ready and,
// once every known account is ready, flips the process from setup to
// running (spec.md §3/§4.1); it then serializes the catalog either way so
// the newly-discovered apps/depots are reflected immediately.
func (m *Manager) finishSweep(a *Account) {
	var becameRunning bool
	m.store.WithCatalogLock(func(tx *Tx) {
		if tx.Status() == StatusSetup && tx.MarkAccountReady(a) {
			becameRunning = true
		}
	})
	if becameRunning {
		m.store.SetStatus(StatusRunning)
	}
	m.store.Sync(m.stateDir)
}
