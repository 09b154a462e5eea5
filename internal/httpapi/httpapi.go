// Package httpapi is the HTTP server described in spec.md §4.4: the
// public manifest/mrc endpoints, conditional-GET, and Accept-Encoding
// content negotiation over the catalog store's pre-compressed buffers.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/steamcat/steamcat/internal/catalog"
	"github.com/steamcat/steamcat/internal/cmclient"
	"github.com/steamcat/steamcat/internal/mrc"
)

// httpTimeLayout is the exact format spec.md §4.4 requires for
// If-Modified-Since / Last-Modified: "a strict Day, DD Mon YYYY HH:MM:SS
// GMT, GMT/UTC".
const httpTimeLayout = "Mon, 02 Jan 2006 15:04:05 GMT"

var errNoLicensedAccount = errors.New("httpapi: no account holds a license for this depot")

// Server wires the catalog store, MRC cache, and sign-in bridge into one
// mux.Router plus access-log/recovery middleware, matching the teacher's
// own use of gorilla/handlers around its router.
type Server struct {
	store     *catalog.Store
	mrcCache  *mrc.Cache
	signin    http.Handler
	log       *slog.Logger
	startedAt time.Time
}

func NewServer(store *catalog.Store, mrcCache *mrc.Cache, signin http.Handler, log *slog.Logger) *Server {
	return &Server{store: store, mrcCache: mrcCache, signin: signin, log: log, startedAt: time.Now()}
}

func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", s.handleLiveness).Methods(http.MethodGet)
	r.HandleFunc("/manifest", s.handleManifest(false)).Methods(http.MethodGet)
	r.HandleFunc("/manifest-bin", s.handleManifest(true)).Methods(http.MethodGet)
	r.HandleFunc("/mrc", s.handleMRC).Methods(http.MethodGet)
	r.PathPrefix("/signin").Handler(s.signin).Methods(http.MethodGet)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	})

	return handlers.RecoveryHandler(handlers.PrintRecoveryStack(false))(
		handlers.CombinedLoggingHandler(newSlogWriter(s.log), r),
	)
}

// handleLiveness is the daemon's own addition to spec.md's endpoint list:
// a bare liveness banner available regardless of process status, so an
// operator's health check doesn't have to wait for the initial setup
// sweep to finish before getting any response at all.
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "steamcat up since %s\n", s.startedAt.UTC().Format(time.RFC3339))
}

func (s *Server) requireRunning(w http.ResponseWriter) bool {
	if s.store.Status() != catalog.StatusRunning {
		w.WriteHeader(http.StatusServiceUnavailable)
		return false
	}
	return true
}

func (s *Server) handleManifest(binary bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.requireRunning(w) {
			return
		}

		ts := s.store.Timestamp()
		if ims := r.Header.Get("If-Modified-Since"); ims != "" {
			if parsed, err := time.Parse(httpTimeLayout, ims); err == nil {
				if ts <= uint64(parsed.Unix()) {
					w.WriteHeader(http.StatusNotModified)
					return
				}
			}
		}

		codec := negotiateEncoding(r.Header.Get("Accept-Encoding"))
		data, release := s.store.AcquireDownload(codec, binary)
		defer release()

		contentType := "application/json; charset=utf-8"
		if binary {
			contentType = "application/octet-stream"
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Last-Modified", time.Unix(int64(ts), 0).UTC().Format(httpTimeLayout))
		if codec != "" {
			w.Header().Set("Content-Encoding", codec)
		}
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	}
}

// negotiateEncoding implements spec.md §4.4's substring match against
// Accept-Encoding among the pre-computed variants; the store itself
// already discarded any variant that wasn't strictly smaller than
// identity, so the first matching token this function returns is safe to
// hand straight to AcquireDownload.
func negotiateEncoding(acceptEncoding string) string {
	if acceptEncoding == "" {
		return ""
	}
	for _, codec := range []string{"zstd", "br", "deflate"} {
		if strings.Contains(acceptEncoding, codec) {
			return codec
		}
	}
	return ""
}

func (s *Server) handleMRC(w http.ResponseWriter, r *http.Request) {
	if !s.requireRunning(w) {
		return
	}

	appID, err1 := parseQueryUint32(r, "app_id")
	depotID, err2 := parseQueryUint32(r, "depot_id")
	manifestID, err3 := parseQueryUint64(r, "manifest_id")
	if err1 != nil || err2 != nil || err3 != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	code, maxAge, err := s.mrcCache.Fetch(r.Context(), manifestID, func(ctx context.Context) (uint64, error) {
		return s.fetchManifestRequestCode(ctx, appID, depotID, manifestID)
	})

	switch {
	case err == nil:
		w.Header().Set("Cache-Control", fmt.Sprintf("max-age=%d", maxAge))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprint(w, strconv.FormatUint(code, 10))
	case errors.Is(err, errNoLicensedAccount):
		http.Error(w, "no licensed account for this depot", http.StatusUnauthorized)
	case errors.Is(err, context.DeadlineExceeded):
		http.Error(w, "cm timeout", http.StatusGatewayTimeout)
	default:
		http.Error(w, "cm error", http.StatusInternalServerError)
	}
}

// fetchManifestRequestCode implements spec.md §4.4's MRC lookup steps 2-3:
// pick the next round-robin account under the catalog lock, then dispatch
// the CM call outside it.
func (s *Server) fetchManifestRequestCode(ctx context.Context, appID, depotID uint32, manifestID uint64) (uint64, error) {
	var session cmclient.Session
	s.store.WithCatalogLock(func(tx *catalog.Tx) {
		steamID, ok := tx.NextDepotAccount(appID, depotID)
		if !ok {
			return
		}
		acc, ok := tx.Account(steamID)
		if !ok {
			return
		}
		session = acc.Session
	})
	if session == nil {
		return 0, errNoLicensedAccount
	}

	cctx, cancel := context.WithTimeout(ctx, cmclient.TimeoutMRC)
	defer cancel()
	select {
	case res := <-session.GetManifestRequestCode(cctx, appID, depotID, manifestID):
		return res.RequestCode, res.Err
	case <-cctx.Done():
		return 0, cctx.Err()
	}
}

func parseQueryUint32(r *http.Request, key string) (uint32, error) {
	v, err := strconv.ParseUint(r.URL.Query().Get(key), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

func parseQueryUint64(r *http.Request, key string) (uint64, error) {
	return strconv.ParseUint(r.URL.Query().Get(key), 10, 64)
}
