package bidding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/collectorden/bidclient/internal/domain"
	"github.com/collectorden/bidclient/internal/platform/auctionapi"
	"github.com/collectorden/bidclient/internal/platform/auctionhub"
)

const (
	// typingIdleTimeout is how long after a typing signal the session
	// auto-sends the stop signal unless re-triggered.
	typingIdleTimeout = 3 * time.Second

	// typingExpiry clears a peer's typing flag when no refresh arrives.
	// Senders auto-stop after typingIdleTimeout, so this covers one lost
	// stop signal.
	typingExpiry = 5 * time.Second

	// snapshotTimeout bounds the initial and post-reconnect snapshot fetch,
	// matching the REST client's request timeout policy.
	snapshotTimeout = 10 * time.Second

	defaultPageSize = 50
)

// SessionState is the lifecycle state of one auction view's session.
type SessionState string

const (
	SessionIdle         SessionState = "idle"
	SessionConnecting   SessionState = "connecting"
	SessionJoiningRoom  SessionState = "joining_room"
	SessionLoading      SessionState = "loading"
	SessionLive         SessionState = "live"
	SessionReconnecting SessionState = "reconnecting"
	SessionClosed       SessionState = "closed"
)

// BidAPI is the slice of the REST client the session needs: bid placement
// and the snapshot reads that seed reconciliation.
type BidAPI interface {
	PlaceBid(ctx context.Context, auctionID string, amount float64, connectionID string) (domain.BidResult, error)
	GetAuctionBids(ctx context.Context, auctionID string, page, pageSize int) (domain.PagedBids, error)
	GetAuctionStats(ctx context.Context, auctionID string) (domain.AuctionStats, error)
}

// Hub is the slice of the connection manager the session needs.
type Hub interface {
	Connect(ctx context.Context) error
	IsConnected() bool
	ConnectionID() string
	SendTyping(auctionID string, isTyping bool) error
	OnStateChange(fn func(domain.ConnectionState)) auctionhub.Subscription
	OffStateChange(id auctionhub.Subscription)
	OnReconnected(fn func()) auctionhub.Subscription
	OffReconnected(id auctionhub.Subscription)
	Dispatcher() *auctionhub.Dispatcher
}

// RoomTracker is the slice of the room membership tracker the session needs.
type RoomTracker interface {
	Join(auctionID string) error
	Leave(auctionID string) error
}

// TypingUser is one peer currently preparing a bid.
type TypingUser struct {
	ID   string
	Name string
}

// SessionOptions configures a Session.
type SessionOptions struct {
	AuctionID string
	// UserID and UserName identify the local bidder; optimistic entries are
	// created with them and typing events from UserID are ignored.
	UserID   string
	UserName string

	API   BidAPI
	Hub   Hub
	Rooms RoomTracker

	// PageSize is the bid-history page fetched as the reconciliation seed.
	PageSize int
	// OnChange, when set, is called after every visible state change so the
	// presentation layer can re-read the snapshot accessors. It must not
	// call back into the session from the same goroutine holding its own
	// locks, and it must be quick.
	OnChange func()

	Clock  clockwork.Clock
	Logger *slog.Logger
}

// Session is the per-auction-view orchestrator. It owns the reconciled bid
// list and stats, exposes bid placement (optimistic, with rollback on
// failure) and debounced typing indicators, and coordinates the connection
// manager, room membership, dispatcher, and reconciliation engine.
//
// All state transitions happen under one mutex, so every inbound event is
// applied atomically before the next is processed. The public surface is the
// only contract the presentation layer may depend on.
type Session struct {
	auctionID string
	userID    string
	userName  string
	pageSize  int

	api      BidAPI
	hub      Hub
	rooms    RoomTracker
	clock    clockwork.Clock
	logger   *slog.Logger
	onChange func()

	mu           sync.Mutex
	state        SessionState
	engine       *Engine
	typingUsers  map[string]string // bidder id -> display name
	typingTimers map[string]clockwork.Timer
	stopTimer    clockwork.Timer // local typing auto-stop
	placing      bool
	connected    bool
	closed       bool
	errMsg       string

	dispatchSubs []auctionhub.Subscription
	stateSub     auctionhub.Subscription
	reconnSub    auctionhub.Subscription
}

// NewSession creates a session for one auction view. Call Start to bring it
// live and Close when the view unmounts.
func NewSession(opts SessionOptions) *Session {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	return &Session{
		auctionID:    opts.AuctionID,
		userID:       opts.UserID,
		userName:     opts.UserName,
		pageSize:     opts.PageSize,
		api:          opts.API,
		hub:          opts.Hub,
		rooms:        opts.Rooms,
		clock:        opts.Clock,
		logger:       opts.Logger.With(slog.String("component", "bidding_session"), slog.String("auction_id", opts.AuctionID)),
		onChange:     opts.OnChange,
		state:        SessionIdle,
		engine:       NewEngine(opts.AuctionID, opts.UserID),
		typingUsers:  make(map[string]string),
		typingTimers: make(map[string]clockwork.Timer),
	}
}

// Start connects the hub, joins the auction room, loads the initial bid and
// stats snapshot, and brings the session live. It returns an error when
// connecting or joining fails; a failed snapshot fetch degrades to an empty
// baseline with the error surfaced via Err.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrSessionClosed
	}
	if s.state != SessionIdle {
		s.mu.Unlock()
		return fmt.Errorf("bidding: session already started (state %s)", s.state)
	}
	s.state = SessionConnecting
	s.mu.Unlock()
	s.notify()

	// A connect already in flight (another view dialing) counts as a failure
	// too: that dial may still fail, and joining the room before the socket
	// is up cannot succeed. The caller retries once the first view settles.
	if err := s.hub.Connect(ctx); err != nil {
		s.setError(SessionIdle, "Failed to connect to real-time service")
		return fmt.Errorf("bidding: start: %w", err)
	}

	s.register()

	if !s.transition(SessionJoiningRoom) {
		return domain.ErrSessionClosed
	}

	if err := s.rooms.Join(s.auctionID); err != nil {
		s.setError(SessionIdle, "Failed to join auction room")
		return fmt.Errorf("bidding: start: %w", err)
	}

	if !s.transition(SessionLoading) {
		return domain.ErrSessionClosed
	}

	if err := s.loadSnapshot(ctx); err != nil {
		if errors.Is(err, domain.ErrSessionClosed) {
			return err
		}
		s.logger.Error("initial snapshot fetch failed", slog.String("error", err.Error()))
		s.mu.Lock()
		s.errMsg = "Failed to load bidding data"
		s.mu.Unlock()
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrSessionClosed
	}
	s.state = SessionLive
	s.connected = s.hub.IsConnected()
	s.mu.Unlock()
	s.notify()
	return nil
}

// PlaceBid submits a bid with an optimistic local update. It returns false
// without a network call when a submission is already in flight. On failure
// the optimistic entry and provisional stats are rolled back and the
// server's message (when available) is surfaced via Err.
func (s *Session) PlaceBid(ctx context.Context, amount float64) (bool, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, domain.ErrSessionClosed
	}
	if s.placing {
		s.mu.Unlock()
		return false, nil
	}
	s.placing = true
	s.errMsg = ""
	temp, prevStats := s.engine.InsertOptimistic(s.userID, s.userName, amount, s.clock.Now())
	s.mu.Unlock()
	s.notify()

	_, err := s.api.PlaceBid(ctx, s.auctionID, amount, s.hub.ConnectionID())

	s.mu.Lock()
	if s.closed {
		// The view unmounted while the request was in flight; its
		// resolution must not mutate anything.
		s.mu.Unlock()
		return false, domain.ErrSessionClosed
	}
	s.placing = false
	if err != nil {
		s.engine.Rollback(temp.ID, prevStats)
		s.errMsg = rejectionMessage(err)
		s.mu.Unlock()
		s.notify()
		var apiErr *auctionapi.APIError
		if errors.As(err, &apiErr) {
			// The server turned the bid down, as opposed to the request
			// failing in transit.
			return false, fmt.Errorf("bidding: place bid: %w: %w", domain.ErrBidRejected, err)
		}
		return false, fmt.Errorf("bidding: place bid: %w", err)
	}
	s.mu.Unlock()
	s.notify()
	return true, nil
}

// SendTypingIndicator tells the room the local user is preparing a bid.
// Fire-and-forget. A true signal arms a timer that auto-sends false after
// the idle timeout unless re-triggered, debouncing caller churn.
func (s *Session) SendTypingIndicator(isTyping bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.stopTimer != nil {
		s.stopTimer.Stop()
		s.stopTimer = nil
	}
	if isTyping {
		s.stopTimer = s.clock.AfterFunc(typingIdleTimeout, s.autoStopTyping)
	}
	s.mu.Unlock()

	if err := s.hub.SendTyping(s.auctionID, isTyping); err != nil {
		s.logger.Debug("typing indicator send failed", slog.String("error", err.Error()))
	}
}

// RetryConnection re-attempts the hub connection after a persistent failure.
// The session is held in Reconnecting, not Connecting, so the manager's
// reconnect notification after a successful dial runs the normal recovery
// path: room membership is restored first, then the snapshot resync brings
// the session back to Live.
func (s *Session) RetryConnection(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrSessionClosed
	}
	s.errMsg = ""
	s.state = SessionReconnecting
	s.mu.Unlock()
	s.notify()

	if err := s.hub.Connect(ctx); err != nil {
		s.setError(SessionIdle, "Failed to connect to real-time service")
		return fmt.Errorf("bidding: retry connection: %w", err)
	}
	return nil
}

// Close leaves the room, unregisters every handler, and cancels timers.
// Idempotent. No state mutation happens after Close returns.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.state = SessionClosed
	if s.stopTimer != nil {
		s.stopTimer.Stop()
		s.stopTimer = nil
	}
	for _, t := range s.typingTimers {
		t.Stop()
	}
	s.typingTimers = make(map[string]clockwork.Timer)
	subs := s.dispatchSubs
	s.dispatchSubs = nil
	stateSub, reconnSub := s.stateSub, s.reconnSub
	s.mu.Unlock()

	d := s.hub.Dispatcher()
	for _, id := range subs {
		d.Off(id)
	}
	if stateSub != "" {
		s.hub.OffStateChange(stateSub)
	}
	if reconnSub != "" {
		s.hub.OffReconnected(reconnSub)
	}

	// Leave is attempted even when disconnected; the tracker treats that as
	// already satisfied.
	return s.rooms.Leave(s.auctionID)
}

// ---------------------------------------------------------------------------
// Snapshot accessors (the presentation contract)
// ---------------------------------------------------------------------------

// Bids returns the reconciled bid list, newest first.
func (s *Session) Bids() []domain.Bid {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Bids()
}

// Stats returns the current aggregate stats.
func (s *Session) Stats() domain.AuctionStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Stats()
}

// TypingUsers returns the peers currently preparing a bid, sorted by id.
// The local user is never included.
func (s *Session) TypingUsers() []TypingUser {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]TypingUser, 0, len(s.typingUsers))
	for id, name := range s.typingUsers {
		out = append(out, TypingUser{ID: id, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IsConnected reports whether the hub connection is up.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// IsPlacingBid reports whether a bid submission is in flight.
func (s *Session) IsPlacingBid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.placing
}

// Err returns the current user-facing error message, or "".
func (s *Session) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

// State returns the session lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ---------------------------------------------------------------------------
// Internal methods
// ---------------------------------------------------------------------------

// register wires the session into the dispatcher and the connection
// manager's lifecycle notifications.
func (s *Session) register() {
	d := s.hub.Dispatcher()

	onBid := func(b domain.Bid) {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		s.engine.Insert(b)
		s.mu.Unlock()
		s.notify()
	}

	subs := []auctionhub.Subscription{
		d.OnBidPlaced(s.auctionID, onBid),
		d.OnBidConfirmed(s.auctionID, onBid),
		d.OnStatsUpdated(s.auctionID, s.handleStats),
		d.OnUserTyping(s.auctionID, s.handleTyping),
	}

	stateSub := s.hub.OnStateChange(s.handleConnectionState)
	reconnSub := s.hub.OnReconnected(s.handleReconnected)

	s.mu.Lock()
	s.dispatchSubs = subs
	s.stateSub = stateSub
	s.reconnSub = reconnSub
	s.mu.Unlock()
}

func (s *Session) handleStats(stats domain.AuctionStats) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.engine.SetStats(stats)
	s.mu.Unlock()
	s.notify()
}

func (s *Session) handleTyping(ev auctionhub.TypingEvent) {
	if ev.UserID == s.userID {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if ev.IsTyping {
		s.typingUsers[ev.UserID] = ev.UserName
		if t, ok := s.typingTimers[ev.UserID]; ok {
			t.Reset(typingExpiry)
		} else {
			userID := ev.UserID
			s.typingTimers[userID] = s.clock.AfterFunc(typingExpiry, func() {
				s.expireTyping(userID)
			})
		}
	} else {
		delete(s.typingUsers, ev.UserID)
		if t, ok := s.typingTimers[ev.UserID]; ok {
			t.Stop()
			delete(s.typingTimers, ev.UserID)
		}
	}
	s.mu.Unlock()
	s.notify()
}

func (s *Session) expireTyping(userID string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	delete(s.typingUsers, userID)
	delete(s.typingTimers, userID)
	s.mu.Unlock()
	s.notify()
}

func (s *Session) autoStopTyping() {
	s.mu.Lock()
	closed := s.closed
	s.stopTimer = nil
	s.mu.Unlock()
	if closed {
		return
	}
	if err := s.hub.SendTyping(s.auctionID, false); err != nil {
		s.logger.Debug("typing auto-stop send failed", slog.String("error", err.Error()))
	}
}

func (s *Session) handleConnectionState(state domain.ConnectionState) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.connected = state == domain.StateConnected
	switch state {
	case domain.StateReconnecting:
		if s.state == SessionLive {
			// Degraded connectivity; the last-known bid list stays visible.
			s.state = SessionReconnecting
		}
	case domain.StateDisconnected:
		if s.state == SessionLive || s.state == SessionReconnecting {
			s.errMsg = "Disconnected from real-time service"
		}
	}
	s.mu.Unlock()
	s.notify()
}

// handleReconnected runs after room membership has been restored (the room
// tracker subscribes to the manager first). The server may have advanced
// while we were away, so the snapshot is re-fetched and merged; events alone
// cannot be trusted to cover the outage.
func (s *Session) handleReconnected() {
	s.mu.Lock()
	if s.closed || s.state == SessionIdle || s.state == SessionConnecting {
		// Initial Start drives its own load; only resync live sessions.
		s.mu.Unlock()
		return
	}
	s.state = SessionLoading
	s.mu.Unlock()
	s.notify()

	go s.resync()
}

func (s *Session) resync() {
	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()

	if err := s.loadSnapshot(ctx); err != nil {
		if errors.Is(err, domain.ErrSessionClosed) {
			return
		}
		s.logger.Error("snapshot resync failed", slog.String("error", err.Error()))
		s.mu.Lock()
		s.errMsg = "Failed to refresh bidding data"
		s.mu.Unlock()
	}

	s.mu.Lock()
	if !s.closed && s.state == SessionLoading {
		s.state = SessionLive
	}
	s.mu.Unlock()
	s.notify()
}

// loadSnapshot fetches the bid history page and stats in parallel and merges
// them into the engine as the reconciliation baseline.
func (s *Session) loadSnapshot(ctx context.Context) error {
	var (
		bids  domain.PagedBids
		stats domain.AuctionStats
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		bids, err = s.api.GetAuctionBids(ctx, s.auctionID, 1, s.pageSize)
		return err
	})
	g.Go(func() error {
		var err error
		stats, err = s.api.GetAuctionStats(ctx, s.auctionID)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrSessionClosed
	}
	s.engine.Seed(bids.Data, stats)
	s.mu.Unlock()
	s.notify()
	return nil
}

// transition moves to the given state unless the session has closed.
func (s *Session) transition(state SessionState) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.state = state
	s.mu.Unlock()
	s.notify()
	return true
}

func (s *Session) setError(state SessionState, msg string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.state = state
	s.errMsg = msg
	s.mu.Unlock()
	s.notify()
}

func (s *Session) notify() {
	if s.onChange != nil {
		s.onChange()
	}
}

// rejectionMessage extracts the server's wording from a failed submission,
// falling back to a generic message.
func rejectionMessage(err error) string {
	var apiErr *auctionapi.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return "Failed to place bid"
}
