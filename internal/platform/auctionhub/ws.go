// Package auctionhub is the client for the marketplace's realtime bidding
// hub: a persistent websocket carrying bid events, stats snapshots, and
// typing indicators, with per-auction room membership.
package auctionhub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/collectorden/bidclient/internal/auth"
	"github.com/collectorden/bidclient/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// defaultMaxReconnects caps automatic connection attempts before the
	// manager gives up and requires an explicit Connect call.
	defaultMaxReconnects = 5

	defaultHandshakeTimeout = 15 * time.Second
)

// connectionIDHeader names the client-chosen connection id sent on the
// handshake. The same value rides on REST bid placement so the server can
// suppress echoing events back to the originating connection.
const connectionIDHeader = "X-Connection-Id"

// ManagerOptions configures a Manager. Zero fields fall back to defaults.
type ManagerOptions struct {
	// URL is the hub websocket endpoint, e.g. "wss://api.collectorden.com/biddingHub".
	URL string
	// Tokens supplies the bearer credential sent on the handshake.
	Tokens auth.TokenProvider
	// HandshakeTimeout bounds each dial attempt.
	HandshakeTimeout time.Duration
	// MaxReconnects caps automatic attempts per connect/reconnect cycle.
	MaxReconnects int
	// Clock drives backoff waits and the ping ticker; tests inject a fake.
	Clock clockwork.Clock
	Logger *slog.Logger
}

// Manager owns the single persistent hub connection shared by every open
// auction view. It handles connect/disconnect, automatic reconnection with a
// fixed backoff schedule, keepalive, and routing of inbound frames to its
// Dispatcher. Server-side room membership does not survive a transport
// reconnect, so the manager notifies reconnect subscribers (the room tracker
// first) after every successful re-dial.
type Manager struct {
	url              string
	tokens           auth.TokenProvider
	handshakeTimeout time.Duration
	maxReconnects    int
	clock            clockwork.Clock
	logger           *slog.Logger
	dispatcher       *Dispatcher

	mu     sync.Mutex
	conn   *websocket.Conn
	state  domain.ConnectionState
	connID string
	done   chan struct{}

	subMu      sync.Mutex
	stateSubs  []stateSub
	reconnSubs []reconnSub
}

type stateSub struct {
	id Subscription
	fn func(domain.ConnectionState)
}

type reconnSub struct {
	id Subscription
	fn func()
}

// NewManager creates a Manager. The connection is not opened until Connect.
func NewManager(opts ManagerOptions) *Manager {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}
	if opts.MaxReconnects < 1 {
		opts.MaxReconnects = defaultMaxReconnects
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tokens == nil {
		opts.Tokens = auth.StaticProvider{}
	}
	return &Manager{
		url:              opts.URL,
		tokens:           opts.Tokens,
		handshakeTimeout: opts.HandshakeTimeout,
		maxReconnects:    opts.MaxReconnects,
		clock:            opts.Clock,
		logger:           opts.Logger.With(slog.String("component", "auctionhub")),
		dispatcher:       NewDispatcher(),
		state:            domain.StateDisconnected,
	}
}

// Dispatcher returns the event dispatcher fed by this connection.
func (m *Manager) Dispatcher() *Dispatcher {
	return m.dispatcher
}

// State returns the current connection state.
func (m *Manager) State() domain.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsConnected reports whether the hub connection is currently up.
func (m *Manager) IsConnected() bool {
	return m.State() == domain.StateConnected
}

// ConnectionID returns the id identifying the current connection to the
// server, or an empty string when disconnected. The id changes on every
// successful dial.
func (m *Manager) ConnectionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connID
}

// Connect opens the hub connection. It is idempotent: when already
// connected it returns nil immediately, and while another attempt is in
// flight it returns domain.ErrConnectInProgress. Failed dials are retried on
// the backoff schedule up to the attempt cap; exhaustion surfaces
// domain.ErrConnectionFailed and leaves the manager disconnected until the
// caller retries explicitly.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case domain.StateConnected:
		m.mu.Unlock()
		return nil
	case domain.StateConnecting, domain.StateReconnecting:
		m.mu.Unlock()
		return domain.ErrConnectInProgress
	}
	m.state = domain.StateConnecting
	m.mu.Unlock()
	m.notifyState(domain.StateConnecting)

	var lastErr error
	for attempt := 0; attempt < m.maxReconnects; attempt++ {
		if err := m.wait(ctx, retryDelay(attempt)); err != nil {
			m.setDisconnected()
			return fmt.Errorf("auctionhub: connect: %w", err)
		}

		if err := m.dial(ctx); err != nil {
			lastErr = err
			m.logger.Warn("hub dial failed",
				slog.Int("attempt", attempt+1),
				slog.String("error", err.Error()),
			)
			continue
		}
		// Every successful dial notifies reconnect subscribers, so a manual
		// Connect after a dropped connection restores room membership the
		// same way an automatic reconnect does. On the very first connect
		// nothing is subscribed yet and this is a no-op.
		m.notifyReconnected()
		return nil
	}

	m.setDisconnected()
	return fmt.Errorf("auctionhub: connect: %w: %v", domain.ErrConnectionFailed, lastErr)
}

// Disconnect closes the connection and stops any reconnection in progress.
// Safe to call when already disconnected.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	conn := m.conn
	done := m.done
	already := m.state == domain.StateDisconnected
	m.conn = nil
	m.connID = ""
	m.done = nil
	m.state = domain.StateDisconnected
	m.mu.Unlock()

	if done != nil {
		close(done)
	}

	var err error
	if conn != nil {
		_ = conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		err = conn.Close()
	}

	if !already {
		m.notifyState(domain.StateDisconnected)
	}
	return err
}

// SendTyping sends a typing indicator for an auction. Fire-and-forget: there
// is no acknowledgement, and callers typically only log failures.
func (m *Manager) SendTyping(auctionID string, isTyping bool) error {
	return m.send(commandFrame{Type: cmdTyping, AuctionID: auctionID, IsTyping: isTyping})
}

// OnStateChange registers a callback for connection state transitions.
func (m *Manager) OnStateChange(fn func(domain.ConnectionState)) Subscription {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	id := Subscription(uuid.NewString())
	m.stateSubs = append(m.stateSubs, stateSub{id: id, fn: fn})
	return id
}

// OffStateChange removes a state-change callback.
func (m *Manager) OffStateChange(id Subscription) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for i, s := range m.stateSubs {
		if s.id == id {
			m.stateSubs = append(m.stateSubs[:i], m.stateSubs[i+1:]...)
			return
		}
	}
}

// OnReconnected registers a callback invoked after every successful
// reconnection, in registration order. The room tracker registers first so
// membership is restored before later subscribers resynchronize.
func (m *Manager) OnReconnected(fn func()) Subscription {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	id := Subscription(uuid.NewString())
	m.reconnSubs = append(m.reconnSubs, reconnSub{id: id, fn: fn})
	return id
}

// OffReconnected removes a reconnected callback.
func (m *Manager) OffReconnected(id Subscription) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for i, s := range m.reconnSubs {
		if s.id == id {
			m.reconnSubs = append(m.reconnSubs[:i], m.reconnSubs[i+1:]...)
			return
		}
	}
}

// --------------------------------------------------------------------------
// Internal methods
// --------------------------------------------------------------------------

// dial opens one websocket connection and, on success, installs it as the
// active connection and starts its read and ping loops.
func (m *Manager) dial(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: m.handshakeTimeout,
	}

	header := http.Header{}
	if token := m.tokens.Token(); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	// The client names its own connection; the server adopts this id and the
	// same value rides on REST bid placement for self-echo suppression.
	connID := uuid.NewString()
	header.Set(connectionIDHeader, connID)

	conn, _, err := dialer.DialContext(ctx, m.url, header)
	if err != nil {
		return err
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	done := make(chan struct{})

	m.mu.Lock()
	m.conn = conn
	m.connID = connID
	m.state = domain.StateConnected
	m.done = done
	m.mu.Unlock()

	go m.readLoop(conn, done)
	go m.pingLoop(conn, done)

	m.notifyState(domain.StateConnected)
	m.logger.Info("hub connected", slog.String("connection_id", connID))
	return nil
}

// readLoop reads frames from one connection until it fails or the manager is
// disconnected. A read failure that was not caused by Disconnect starts the
// reconnection cycle.
func (m *Manager) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer conn.Close()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-done:
				return
			default:
			}
			m.runReconnect(done)
			return
		}
		m.handleMessage(message)
	}
}

// pingLoop sends periodic pings to keep the connection alive.
func (m *Manager) pingLoop(conn *websocket.Conn, done chan struct{}) {
	ticker := m.clock.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.Chan():
			m.mu.Lock()
			if m.conn != conn {
				m.mu.Unlock()
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			m.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// runReconnect re-dials on the backoff schedule after a dropped connection.
// oldDone is the failed connection's done channel; Disconnect closes it to
// abort the cycle.
func (m *Manager) runReconnect(oldDone chan struct{}) {
	m.mu.Lock()
	if m.done != oldDone {
		// A Disconnect/Connect cycle superseded this connection.
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.connID = ""
	m.state = domain.StateReconnecting
	m.mu.Unlock()
	m.notifyState(domain.StateReconnecting)
	m.logger.Warn("hub connection lost, reconnecting")

	for attempt := 0; attempt < m.maxReconnects; attempt++ {
		select {
		case <-oldDone:
			return
		case <-m.clock.After(retryDelay(attempt)):
		}

		ctx, cancel := context.WithTimeout(context.Background(), m.handshakeTimeout)
		err := m.dial(ctx)
		cancel()

		if err == nil {
			m.notifyReconnected()
			return
		}
		m.logger.Warn("hub reconnect attempt failed",
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()),
		)
	}

	m.setDisconnected()
	m.logger.Error("hub reconnect attempts exhausted")
}

// send writes one command frame. The connection mutex serializes writers
// (the ping loop writes on the same connection).
func (m *Manager) send(cmd commandFrame) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil || m.state != domain.StateConnected {
		return domain.ErrNotConnected
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}

	m.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return m.conn.WriteMessage(websocket.TextMessage, data)
}

// handleMessage parses a raw frame and routes it to the dispatcher.
// Unparseable frames are dropped.
func (m *Manager) handleMessage(raw []byte) {
	var envelope eventEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		m.logger.Debug("dropping unparseable hub frame", slog.Int("len", len(raw)))
		return
	}

	switch EventKind(envelope.Type) {
	case EventBidPlaced, EventBidConfirmed:
		var frame bidEventFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			return
		}
		m.dispatcher.DispatchBid(EventKind(envelope.Type), frame.Bid)

	case EventStatsUpdated:
		var frame statsEventFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			return
		}
		m.dispatcher.DispatchStats(frame.Stats)

	case EventUserTyping:
		var frame typingEventFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			return
		}
		m.dispatcher.DispatchTyping(TypingEvent{
			UserID:    frame.UserID,
			UserName:  frame.UserName,
			AuctionID: frame.AuctionID,
			IsTyping:  frame.IsTyping,
		})
	}
}

// wait blocks for d on the injected clock, returning early if ctx ends.
func (m *Manager) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-m.clock.After(d):
		return nil
	}
}

func (m *Manager) setDisconnected() {
	m.mu.Lock()
	m.state = domain.StateDisconnected
	m.mu.Unlock()
	m.notifyState(domain.StateDisconnected)
}

func (m *Manager) notifyState(state domain.ConnectionState) {
	m.subMu.Lock()
	subs := make([]stateSub, len(m.stateSubs))
	copy(subs, m.stateSubs)
	m.subMu.Unlock()

	for _, s := range subs {
		s.fn(state)
	}
}

func (m *Manager) notifyReconnected() {
	m.subMu.Lock()
	subs := make([]reconnSub, len(m.reconnSubs))
	copy(subs, m.reconnSubs)
	m.subMu.Unlock()

	for _, s := range subs {
		s.fn()
	}
}
