// Package signin implements the interactive sign-in bridge, spec.md §4.5:
// a per-WebSocket-connection state machine that relays credentials- or
// QR-based Steam authentication between a browser-style client and a
// short-lived upstream CM auth session.
package signin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/steamcat/steamcat/internal/cmclient"
)

// maxFrameBytes bounds a single WS text frame, spec.md §4.5: "binary
// frames and fragmented messages larger than the receive buffer are
// rejected (to resist memory-exhaustion attempts)."
const maxFrameBytes = 8 * 1024

// maxPasswordBytes bounds the credentials password field before it is
// ever handed to the CM auth APIs, guarding against pathological input.
const maxPasswordBytes = 512

// state is the sign-in state machine's current step.
type state int

const (
	stateAwaitingInit state = iota
	stateAwaitingCMResponse
	stateAwaitingConfirmation
	stateDone
	stateDisconnected
)

// Accepted is invoked once a bridge session reaches "done" with a captured
// token, letting the daemon decide whether to register a new account,
// replace an existing one's token, or discard it, per spec.md §4.5's
// on-close disposition rules.
type Accepted func(steamID uint64, token string, info cmclient.TokenInfo)

// Bridge is the /signin HTTP handler. One Bridge serves every connection;
// each connection gets its own session goroutine and its own auth-only CM
// session.
type Bridge struct {
	provider cmclient.Provider
	log      *slog.Logger
	upgrader websocket.Upgrader

	deviceName string
	onAccepted Accepted
}

func NewBridge(provider cmclient.Provider, deviceVersion, hostname string, log *slog.Logger, onAccepted Accepted) *Bridge {
	return &Bridge{
		provider:   provider,
		log:        log,
		deviceName: fmt.Sprintf("steamcat %s @ %s", deviceVersion, hostname),
		onAccepted: onAccepted,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  maxFrameBytes,
			WriteBufferSize: maxFrameBytes,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Debug("signin websocket upgrade failed", "err", err)
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	connID := uuid.NewString()
	s := &session{
		bridge: b,
		conn:   conn,
		state:  stateAwaitingInit,
		log:    b.log.With("signin_conn", connID),
	}
	go s.run()
}

type inbound struct {
	Type        string `json:"type"`
	AccountName string `json:"account_name,omitempty"`
	Password    string `json:"password,omitempty"`
	Code        string `json:"code,omitempty"`
}

type outbound struct {
	URL           string       `json:"url,omitempty"`
	Confirmations []string     `json:"confirmations,omitempty"`
	Renewable     *bool        `json:"renewable,omitempty"`
	Expires       *int64       `json:"expires,omitempty"`
	Error         *outboundErr `json:"error,omitempty"`
}

type outboundErr struct {
	Type      string `json:"type"`
	Primary   string `json:"primary"`
	Auxiliary string `json:"auxiliary,omitempty"`
}

// session is one /signin connection's state and its upstream auth session.
type session struct {
	bridge *Bridge
	conn   *websocket.Conn
	log    *slog.Logger

	state  state
	auth   cmclient.AuthSession
	ctx    context.Context
	cancel context.CancelFunc

	steamID  uint64
	token    string
	info     cmclient.TokenInfo
	captured bool
}

func (s *session) run() {
	defer s.conn.Close()
	s.ctx, s.cancel = context.WithCancel(context.Background())
	defer s.cancel()

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			s.onDisconnect()
			return
		}
		if msgType != websocket.TextMessage {
			s.log.Debug("rejecting non-text signin frame")
			return
		}
		if len(data) > maxFrameBytes {
			s.log.Debug("rejecting oversized signin frame")
			return
		}

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			s.log.Debug("rejecting malformed signin json", "err", err)
			return
		}

		if !s.handle(msg) {
			return
		}
		if s.state == stateDone {
			s.finish()
			return
		}
	}
}

// handle dispatches one inbound message per spec.md §4.5's state table.
// Returns false if the connection should be closed.
func (s *session) handle(msg inbound) bool {
	switch s.state {
	case stateAwaitingInit:
		switch msg.Type {
		case "credentials":
			if len(msg.Password) > maxPasswordBytes {
				s.send(outbound{Error: &outboundErr{Type: "client", Primary: "password too long"}})
				return false
			}
			s.auth = s.bridge.provider.NewAuthSession()
			s.state = stateAwaitingCMResponse
			go s.pumpAuthEvents(s.auth.AuthCredentials(s.ctx, msg.AccountName, msg.Password, s.bridge.deviceName))
			return true
		case "qr":
			s.auth = s.bridge.provider.NewAuthSession()
			s.state = stateAwaitingCMResponse
			go s.pumpAuthEvents(s.auth.AuthQR(s.ctx, s.bridge.deviceName))
			return true
		default:
			s.log.Debug("unexpected signin message in awaiting-init", "type", msg.Type)
			return false
		}
	case stateAwaitingConfirmation:
		switch msg.Type {
		case "guard_code", "email":
			s.state = stateAwaitingCMResponse
			go s.pumpAuthEvents(s.auth.SubmitCode(s.ctx, msg.Type, msg.Code))
			return true
		default:
			s.log.Debug("unexpected signin message in awaiting-confirmation", "type", msg.Type)
			return false
		}
	default:
		s.log.Debug("unexpected signin message", "state", s.state, "type", msg.Type)
		return false
	}
}

// pumpAuthEvents relays one AuthSession call's events onto the WS as they
// arrive; each of AuthCredentials/AuthQR/SubmitCode's channels can emit
// zero or more new_url/awaiting_confirmation events before a terminal
// completed event. Once the session is done, the WS is closed, which ends
// run's read loop and hands any captured token on via onDisconnect.
func (s *session) pumpAuthEvents(events <-chan cmclient.AuthEvent) {
	for ev := range events {
		s.onAuthEvent(ev)
	}
	if s.state == stateDone {
		s.conn.Close()
	}
}

func (s *session) onAuthEvent(ev cmclient.AuthEvent) {
	switch {
	case ev.NewURL != "":
		s.send(outbound{URL: ev.NewURL})
	case len(ev.AwaitingConfirmation) > 0:
		s.state = stateAwaitingConfirmation
		s.send(outbound{Confirmations: ev.AwaitingConfirmation})
	case ev.Completed && ev.Err == nil:
		s.steamID = ev.SteamID
		s.token = ev.Token
		s.info = cmclient.TokenInfo{Expiry: ev.TokenExpiry, Renewable: ev.TokenRenewable}
		s.captured = true
		renewable := ev.TokenRenewable
		out := outbound{Renewable: &renewable}
		if !ev.TokenExpiry.IsZero() {
			exp := ev.TokenExpiry.Unix()
			out.Expires = &exp
		}
		s.send(out)
		s.auth.Disconnect()
		s.state = stateDone
	case ev.Completed && ev.Err != nil:
		s.send(outbound{Error: &outboundErr{Type: "cm", Primary: ev.Err.Error()}})
		s.auth.Disconnect()
		s.state = stateDone
	}
}

func (s *session) onDisconnect() {
	if s.state == stateDone {
		s.finish()
		return
	}
	s.state = stateDisconnected
	if s.auth != nil {
		s.auth.Disconnect()
	}
}

// finish implements spec.md §4.5's on-close disposition: hand a captured
// token to the daemon's Accepted callback.
func (s *session) finish() {
	if s.captured && s.bridge.onAccepted != nil {
		s.bridge.onAccepted(s.steamID, s.token, s.info)
	}
}

func (s *session) send(msg outbound) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	_ = s.conn.WriteMessage(websocket.TextMessage, data)
}
