// Package cmclient defines the boundary between this proxy and Steam's
// Content-Manager network. The concrete CM protocol (connection framing,
// binary message encoding, the handshake itself) is outside the scope of
// this repository — spec.md treats it as an external collaborator and only
// the shapes below are ours to keep stable.
//
// Every call is asynchronous: it dispatches the request against the
// session's background connection and returns a channel that receives
// exactly one result. Callers select on the channel with a timeout rather
// than blocking the event loop, per the per-account sequential pipeline
// described in spec.md's design notes.
package cmclient

import (
	"context"
	"time"
)

// ErrorType distinguishes a failure reported by Steam itself from a local
// transport problem (dropped connection, DNS failure, ...).
type ErrorType int

const (
	ErrTypeTransport ErrorType = iota
	ErrTypeSteamCM
)

// Result is Steam's EResult, narrowed to the handful of values this proxy
// branches on. Anything else is carried in Raw for logging.
type Result int

const (
	ResultOK Result = iota
	ResultAccessDenied
	ResultInvalidSignature
	ResultServiceUnavailable
	ResultBlocked
	ResultAccessTokenDenied
	ResultMissingToken
	ResultTimeout
	ResultOther
)

// Error is what every CM completion channel carries on failure.
type Error struct {
	Type   ErrorType
	Result Result
	Raw    string
}

func (e *Error) Error() string {
	if e.Raw != "" {
		return e.Raw
	}
	return "cm error"
}

// IsTolerableBlocked reports whether err is the specific
// steam_cm/k_EResultBlocked pairing that spec.md's open question calls out:
// a pre-release depot with no key available yet, not any other "blocked"
// condition from a different layer.
func IsTolerableBlocked(err error) bool {
	cmErr, ok := err.(*Error)
	if !ok {
		return false
	}
	return cmErr.Type == ErrTypeSteamCM && cmErr.Result == ResultBlocked
}

// Per-call timeouts, spec.md §5.
const (
	TimeoutConnect  = 5 * time.Second
	TimeoutSignIn   = 5 * time.Second
	TimeoutRenew    = 5 * time.Second
	TimeoutLicenses = 10 * time.Second
	TimeoutPICS     = 10 * time.Second
	TimeoutDepotKey = 3 * time.Second
	TimeoutMRC      = 2 * time.Second
)

// TokenInfo is the parsed form of an opaque account token string.
type TokenInfo struct {
	Expiry    time.Time
	Renewable bool
}

type License struct {
	PackageID   uint32
	AccessToken uint64
}

type AppAccessToken struct {
	AppID       uint32
	AccessToken uint64
}

type DepotKey struct {
	DepotID uint32
	Key     [32]byte
}

// Session is one long-lived upstream CM connection, owned by a single
// account. Its methods are called from more than one goroutine: the
// account's pipeline, HTTP handlers (GetManifestRequestCode), the renewal
// timer (RenewToken) and the shutdown path (Disconnect), so implementations
// must be safe for concurrent use. Completions are delivered on the
// returned channels.
type Session interface {
	// Connect dials the CM network. The channel fires once.
	Connect(ctx context.Context) <-chan error

	SignIn(ctx context.Context, token string) <-chan error
	RenewToken(ctx context.Context, token string) <-chan RenewTokenResult

	GetLicenses(ctx context.Context) <-chan LicensesResult
	PICSProductInfoPackages(ctx context.Context, licenses []License) <-chan PICSPackagesResult
	PICSAccessTokens(ctx context.Context, appIDs []uint32) <-chan PICSAccessTokensResult
	PICSProductInfoApps(ctx context.Context, tokens []AppAccessToken) <-chan PICSAppsResult
	GetDepotKey(ctx context.Context, depotID uint32) <-chan DepotKeyResult
	GetManifestRequestCode(ctx context.Context, appID, depotID uint32, manifestID uint64) <-chan ManifestRequestCodeResult

	// Disconnect tears down the connection; Disconnected fires once the
	// provider confirms the socket is closed, mirroring spec.md's
	// `disconnected` event which decrements the active-connection counter.
	Disconnect()
	Disconnected() <-chan struct{}
}

type RenewTokenResult struct {
	NewToken  string
	NewExpiry time.Time
	Err       error
}

type LicensesResult struct {
	Licenses []License
	Err      error
}

// PICSPackagesResult carries one binary-VDF payload per requested package,
// keyed by package ID. Parsing the appids/depotids arrays out of it is the
// catalog builder's job, not the session's — the session's concern ends at
// the CM wire protocol, per spec.md's treatment of PICS as an external
// collaborator whose payload format (not its meaning) crosses this
// boundary.
type PICSPackagesResult struct {
	Packages map[uint32][]byte
	Err      error
}

type PICSAccessTokensResult struct {
	Tokens []AppAccessToken
	Err    error
}

// PICSAppsResult carries one text-VDF payload per requested app, keyed by
// app ID, for the same reason PICSPackagesResult carries raw binary VDF.
type PICSAppsResult struct {
	Apps map[uint32][]byte
	Err  error
}

type DepotKeyResult struct {
	DepotID uint32
	Key     [32]byte
	Err     error
}

type ManifestRequestCodeResult struct {
	RequestCode uint64
	Err         error
}

// AuthEvent is one message in the interactive sign-in exchange driven by
// an AuthSession, relayed verbatim by internal/signin to the browser-side
// WebSocket client.
type AuthEvent struct {
	NewURL               string
	AwaitingConfirmation  []string // subset of {"device","guard_code","email"}
	Completed             bool
	Token                 string
	TokenExpiry           time.Time
	TokenRenewable        bool
	SteamID               uint64
	Err                   error
}

// AuthSession is a short-lived, auth-only CM connection used solely to
// carry out one interactive sign-in, per spec.md §4.5.
type AuthSession interface {
	AuthCredentials(ctx context.Context, accountName, password, deviceName string) <-chan AuthEvent
	AuthQR(ctx context.Context, deviceName string) <-chan AuthEvent
	SubmitCode(ctx context.Context, kind string, code string) <-chan AuthEvent
	Disconnect()
}

// Provider constructs sessions. Exactly one concrete implementation talks
// to real Steam infrastructure; it is assumed to exist outside this
// repository and is wired in at the process entry point.
type Provider interface {
	NewSession(steamID uint64) Session
	NewAuthSession() AuthSession
}

// Default is the process-wide Provider, set by a build that links in a
// concrete CM implementation — analogous to database/sql's driver
// registry. cmd/steamcatd refuses to start if this is still nil.
var Default Provider

// Register installs the process-wide CM provider. Called from an
// init() in whatever package supplies the concrete implementation.
func Register(p Provider) {
	Default = p
}
