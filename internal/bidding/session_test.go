package bidding

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/collectorden/bidclient/internal/domain"
	"github.com/collectorden/bidclient/internal/platform/auctionapi"
	"github.com/collectorden/bidclient/internal/platform/auctionhub"
)

const eventually = 2 * time.Second

// fakeBidAPI is an in-memory BidAPI. placeGate, when set, blocks PlaceBid
// until the test releases it, which is how in-flight submissions are
// observed.
type fakeBidAPI struct {
	mu         sync.Mutex
	bids       domain.PagedBids
	stats      domain.AuctionStats
	bidsErr    error
	placeErr   error
	placeGate  chan struct{}
	placeCalls int
	lastConnID string
}

func (f *fakeBidAPI) PlaceBid(ctx context.Context, auctionID string, amount float64, connectionID string) (domain.BidResult, error) {
	f.mu.Lock()
	f.placeCalls++
	f.lastConnID = connectionID
	gate := f.placeGate
	err := f.placeErr
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return domain.BidResult{}, err
	}
	return domain.BidResult{BidID: "bid-accepted", AuctionID: auctionID, Amount: amount}, nil
}

func (f *fakeBidAPI) GetAuctionBids(ctx context.Context, auctionID string, page, pageSize int) (domain.PagedBids, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bidsErr != nil {
		return domain.PagedBids{}, f.bidsErr
	}
	return f.bids, nil
}

func (f *fakeBidAPI) GetAuctionStats(ctx context.Context, auctionID string) (domain.AuctionStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats, nil
}

func (f *fakeBidAPI) setSnapshot(bids []domain.Bid, stats domain.AuctionStats) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bids = domain.PagedBids{Data: bids, Page: 1, PageSize: 50, TotalCount: len(bids)}
	f.stats = stats
	f.bidsErr = nil
}

func (f *fakeBidAPI) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.placeCalls
}

type typingCall struct {
	auctionID string
	isTyping  bool
}

// fakeHub implements Hub over a real Dispatcher, so tests exercise the same
// routing the websocket read loop uses.
type fakeHub struct {
	d *auctionhub.Dispatcher

	mu         sync.Mutex
	connected  bool
	connectErr error
	typing     []typingCall
	stateFns   map[auctionhub.Subscription]func(domain.ConnectionState)
	reconnFns  map[auctionhub.Subscription]func()
}

func newFakeHub() *fakeHub {
	return &fakeHub{
		d:         auctionhub.NewDispatcher(),
		stateFns:  make(map[auctionhub.Subscription]func(domain.ConnectionState)),
		reconnFns: make(map[auctionhub.Subscription]func()),
	}
}

func (f *fakeHub) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeHub) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeHub) ConnectionID() string { return "conn-test" }

func (f *fakeHub) SendTyping(auctionID string, isTyping bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typing = append(f.typing, typingCall{auctionID: auctionID, isTyping: isTyping})
	return nil
}

func (f *fakeHub) OnStateChange(fn func(domain.ConnectionState)) auctionhub.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := auctionhub.Subscription("state-sub")
	f.stateFns[id] = fn
	return id
}

func (f *fakeHub) OffStateChange(id auctionhub.Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.stateFns, id)
}

func (f *fakeHub) OnReconnected(fn func()) auctionhub.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := auctionhub.Subscription("reconn-sub")
	f.reconnFns[id] = fn
	return id
}

func (f *fakeHub) OffReconnected(id auctionhub.Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.reconnFns, id)
}

func (f *fakeHub) Dispatcher() *auctionhub.Dispatcher { return f.d }

func (f *fakeHub) fireState(state domain.ConnectionState) {
	f.mu.Lock()
	f.connected = state == domain.StateConnected
	fns := make([]func(domain.ConnectionState), 0, len(f.stateFns))
	for _, fn := range f.stateFns {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(state)
	}
}

func (f *fakeHub) fireReconnected() {
	f.mu.Lock()
	f.connected = true
	fns := make([]func(), 0, len(f.reconnFns))
	for _, fn := range f.reconnFns {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (f *fakeHub) typingLog() []typingCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]typingCall, len(f.typing))
	copy(out, f.typing)
	return out
}

type fakeRooms struct {
	mu      sync.Mutex
	joins   []string
	leaves  []string
	joinErr error
}

func (f *fakeRooms) Join(auctionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.joinErr != nil {
		return f.joinErr
	}
	f.joins = append(f.joins, auctionID)
	return nil
}

func (f *fakeRooms) Leave(auctionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaves = append(f.leaves, auctionID)
	return nil
}

type sessionFixture struct {
	api     *fakeBidAPI
	hub     *fakeHub
	rooms   *fakeRooms
	clock   *clockwork.FakeClock
	session *Session
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	f := &sessionFixture{
		api:   &fakeBidAPI{},
		hub:   newFakeHub(),
		rooms: &fakeRooms{},
		clock: clockwork.NewFakeClock(),
	}
	f.session = NewSession(SessionOptions{
		AuctionID: testAuctionID,
		UserID:    localUser,
		UserName:  "Local Bidder",
		API:       f.api,
		Hub:       f.hub,
		Rooms:     f.rooms,
		Clock:     f.clock,
	})
	t.Cleanup(func() { _ = f.session.Close() })
	return f
}

func (f *sessionFixture) start(t *testing.T) {
	t.Helper()
	require.NoError(t, f.session.Start(context.Background()))
	require.Equal(t, SessionLive, f.session.State())
}

func TestSessionStartLoadsSnapshot(t *testing.T) {
	f := newSessionFixture(t)
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	f.api.setSnapshot(
		[]domain.Bid{
			bid("b2", otherUser, 120, base.Add(time.Second)),
			bid("b1", otherUser, 100, base),
		},
		domain.AuctionStats{AuctionID: testAuctionID, HighestBid: 120, BidCount: 2},
	)

	f.start(t)

	require.True(t, f.session.IsConnected())
	require.Equal(t, []string{testAuctionID}, f.rooms.joins)
	require.Equal(t, []string{"b2", "b1"}, bidIDs(f.session.Bids()))
	require.Equal(t, 120.0, f.session.Stats().HighestBid)
	require.Empty(t, f.session.Err())
}

func TestSessionStartSnapshotFailureDegrades(t *testing.T) {
	f := newSessionFixture(t)
	f.api.bidsErr = domain.ErrNotFound

	require.NoError(t, f.session.Start(context.Background()))

	require.Equal(t, SessionLive, f.session.State())
	require.Empty(t, f.session.Bids())
	require.Equal(t, "Failed to load bidding data", f.session.Err())
}

func TestSessionStartJoinFailure(t *testing.T) {
	f := newSessionFixture(t)
	f.rooms.joinErr = domain.ErrNotConnected

	err := f.session.Start(context.Background())

	require.Error(t, err)
	require.Equal(t, SessionIdle, f.session.State())
	require.Equal(t, "Failed to join auction room", f.session.Err())
}

func TestSessionPlaceBidOptimisticThenConfirmed(t *testing.T) {
	f := newSessionFixture(t)
	f.start(t)

	gate := make(chan struct{})
	f.api.placeGate = gate

	done := make(chan error, 1)
	go func() {
		ok, err := f.session.PlaceBid(context.Background(), 150)
		if err == nil && !ok {
			t.Error("expected bid submission to be accepted")
		}
		done <- err
	}()

	// The optimistic entry is visible while the request is in flight.
	require.Eventually(t, func() bool {
		bids := f.session.Bids()
		return len(bids) == 1 && bids[0].IsOptimistic()
	}, eventually, 10*time.Millisecond)
	require.True(t, f.session.IsPlacingBid())
	require.Equal(t, 150.0, f.session.Stats().HighestBid)

	close(gate)
	require.NoError(t, <-done)
	require.False(t, f.session.IsPlacingBid())
	require.Equal(t, "conn-test", f.api.lastConnID)

	// The confirmation arrives over the hub and promotes the temp entry.
	f.hub.d.DispatchBid(auctionhub.EventBidConfirmed,
		bid("real-1", localUser, 150, time.Date(2026, 3, 14, 12, 0, 1, 0, time.UTC)))

	bids := f.session.Bids()
	require.Len(t, bids, 1)
	require.Equal(t, "real-1", bids[0].ID)
}

func TestSessionPlaceBidRollbackOnRejection(t *testing.T) {
	f := newSessionFixture(t)
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	f.api.setSnapshot(
		[]domain.Bid{bid("b1", otherUser, 200, base)},
		domain.AuctionStats{AuctionID: testAuctionID, HighestBid: 200, BidCount: 1},
	)
	f.start(t)

	f.api.placeErr = &auctionapi.APIError{
		Status:  422,
		Message: "Bid must be higher than the current highest bid",
	}

	ok, err := f.session.PlaceBid(context.Background(), 150)

	require.False(t, ok)
	require.ErrorIs(t, err, domain.ErrBidRejected)
	require.Equal(t, []string{"b1"}, bidIDs(f.session.Bids()))
	require.Equal(t, 200.0, f.session.Stats().HighestBid)
	require.Equal(t, 1, f.session.Stats().BidCount)
	require.Equal(t, "Bid must be higher than the current highest bid", f.session.Err())
}

func TestSessionPlaceBidSingleFlight(t *testing.T) {
	f := newSessionFixture(t)
	f.start(t)

	gate := make(chan struct{})
	f.api.placeGate = gate

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = f.session.PlaceBid(context.Background(), 150)
	}()

	require.Eventually(t, f.session.IsPlacingBid, eventually, 10*time.Millisecond)

	ok, err := f.session.PlaceBid(context.Background(), 160)
	require.NoError(t, err)
	require.False(t, ok, "second submission must be dropped while one is in flight")

	close(gate)
	<-done
	require.Equal(t, 1, f.api.calls())
}

func TestSessionTypingIndicatorAutoStops(t *testing.T) {
	f := newSessionFixture(t)
	f.start(t)

	f.session.SendTypingIndicator(true)
	require.Equal(t, []typingCall{{testAuctionID, true}}, f.hub.typingLog())

	f.clock.Advance(typingIdleTimeout)
	require.Eventually(t, func() bool {
		log := f.hub.typingLog()
		return len(log) == 2 && log[1] == typingCall{testAuctionID, false}
	}, eventually, 10*time.Millisecond)
}

func TestSessionTypingIndicatorDebounce(t *testing.T) {
	f := newSessionFixture(t)
	f.start(t)

	f.session.SendTypingIndicator(true)
	f.clock.Advance(typingIdleTimeout - time.Second)
	f.session.SendTypingIndicator(true)

	// The first timer was re-armed, so no stop fires at the original deadline.
	f.clock.Advance(time.Second)
	require.Len(t, f.hub.typingLog(), 2)

	f.clock.Advance(typingIdleTimeout)
	require.Eventually(t, func() bool {
		log := f.hub.typingLog()
		return len(log) == 3 && !log[2].isTyping
	}, eventually, 10*time.Millisecond)
}

func TestSessionPeerTypingExpiry(t *testing.T) {
	f := newSessionFixture(t)
	f.start(t)

	f.hub.d.DispatchTyping(auctionhub.TypingEvent{
		UserID: otherUser, UserName: "Peer", AuctionID: testAuctionID, IsTyping: true,
	})
	require.Equal(t, []TypingUser{{ID: otherUser, Name: "Peer"}}, f.session.TypingUsers())

	// No stop signal arrives; the flag expires on its own.
	f.clock.Advance(typingExpiry)
	require.Eventually(t, func() bool {
		return len(f.session.TypingUsers()) == 0
	}, eventually, 10*time.Millisecond)
}

func TestSessionPeerTypingStopClearsImmediately(t *testing.T) {
	f := newSessionFixture(t)
	f.start(t)

	f.hub.d.DispatchTyping(auctionhub.TypingEvent{
		UserID: otherUser, UserName: "Peer", AuctionID: testAuctionID, IsTyping: true,
	})
	f.hub.d.DispatchTyping(auctionhub.TypingEvent{
		UserID: otherUser, UserName: "Peer", AuctionID: testAuctionID, IsTyping: false,
	})

	require.Empty(t, f.session.TypingUsers())
}

func TestSessionIgnoresOwnTypingEvents(t *testing.T) {
	f := newSessionFixture(t)
	f.start(t)

	f.hub.d.DispatchTyping(auctionhub.TypingEvent{
		UserID: localUser, UserName: "Local Bidder", AuctionID: testAuctionID, IsTyping: true,
	})

	require.Empty(t, f.session.TypingUsers())
}

func TestSessionStatsEventReplacesAggregates(t *testing.T) {
	f := newSessionFixture(t)
	f.start(t)

	f.hub.d.DispatchStats(domain.AuctionStats{
		AuctionID: testAuctionID, HighestBid: 300, BidCount: 7,
	})

	require.Equal(t, 300.0, f.session.Stats().HighestBid)
	require.Equal(t, 7, f.session.Stats().BidCount)
}

func TestSessionReconnectResyncs(t *testing.T) {
	f := newSessionFixture(t)
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	f.api.setSnapshot(
		[]domain.Bid{bid("b1", otherUser, 100, base)},
		domain.AuctionStats{AuctionID: testAuctionID, HighestBid: 100, BidCount: 1},
	)
	f.start(t)

	f.hub.fireState(domain.StateReconnecting)
	require.Equal(t, SessionReconnecting, f.session.State())
	require.False(t, f.session.IsConnected())
	// The last-known list stays visible during the outage.
	require.Equal(t, []string{"b1"}, bidIDs(f.session.Bids()))

	// The server advanced while we were away; the resync snapshot carries
	// the missed bid.
	f.api.setSnapshot(
		[]domain.Bid{
			bid("b2", otherUser, 140, base.Add(time.Minute)),
			bid("b1", otherUser, 100, base),
		},
		domain.AuctionStats{AuctionID: testAuctionID, HighestBid: 140, BidCount: 2},
	)
	f.hub.fireState(domain.StateConnected)
	f.hub.fireReconnected()

	require.Eventually(t, func() bool {
		return f.session.State() == SessionLive && len(f.session.Bids()) == 2
	}, eventually, 10*time.Millisecond)
	require.Equal(t, []string{"b2", "b1"}, bidIDs(f.session.Bids()))
	require.Equal(t, 140.0, f.session.Stats().HighestBid)
	require.True(t, f.session.IsConnected())
}

func TestSessionPersistentDisconnectSurfacesError(t *testing.T) {
	f := newSessionFixture(t)
	f.start(t)

	f.hub.fireState(domain.StateReconnecting)
	f.hub.fireState(domain.StateDisconnected)

	require.Equal(t, "Disconnected from real-time service", f.session.Err())
	require.False(t, f.session.IsConnected())
}

func TestSessionRetryConnectionClearsError(t *testing.T) {
	f := newSessionFixture(t)
	f.start(t)

	f.hub.fireState(domain.StateDisconnected)
	require.NotEmpty(t, f.session.Err())

	require.NoError(t, f.session.RetryConnection(context.Background()))
	require.Empty(t, f.session.Err())
	require.Equal(t, SessionReconnecting, f.session.State())
}

func TestSessionRetryConnectionResyncsAfterOutage(t *testing.T) {
	f := newSessionFixture(t)
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	f.api.setSnapshot(
		[]domain.Bid{bid("b1", otherUser, 100, base)},
		domain.AuctionStats{AuctionID: testAuctionID, HighestBid: 100, BidCount: 1},
	)
	f.start(t)

	// Automatic reconnection exhausted its attempts; the user retries.
	f.hub.fireState(domain.StateReconnecting)
	f.hub.fireState(domain.StateDisconnected)
	require.Equal(t, "Disconnected from real-time service", f.session.Err())

	// A bid landed server-side during the outage.
	f.api.setSnapshot(
		[]domain.Bid{
			bid("b2", otherUser, 140, base.Add(time.Minute)),
			bid("b1", otherUser, 100, base),
		},
		domain.AuctionStats{AuctionID: testAuctionID, HighestBid: 140, BidCount: 2},
	)

	require.NoError(t, f.session.RetryConnection(context.Background()))

	// The manager notifies exactly as Connect does after a successful dial.
	f.hub.fireState(domain.StateConnected)
	f.hub.fireReconnected()

	require.Eventually(t, func() bool {
		return f.session.State() == SessionLive && len(f.session.Bids()) == 2
	}, eventually, 10*time.Millisecond)
	require.Equal(t, []string{"b2", "b1"}, bidIDs(f.session.Bids()))
	require.Equal(t, 140.0, f.session.Stats().HighestBid)
	require.Empty(t, f.session.Err())
	require.True(t, f.session.IsConnected())
}

func TestSessionStartFailsWhileConnectInFlight(t *testing.T) {
	f := newSessionFixture(t)
	f.hub.connectErr = domain.ErrConnectInProgress

	err := f.session.Start(context.Background())

	// Another view's dial is still in flight; joining the room now could
	// only fail, so the start is reported as a connect failure.
	require.ErrorIs(t, err, domain.ErrConnectInProgress)
	require.Equal(t, SessionIdle, f.session.State())
	require.Empty(t, f.rooms.joins)
	require.Equal(t, "Failed to connect to real-time service", f.session.Err())
}

func TestSessionCloseIsIdempotentAndStopsUpdates(t *testing.T) {
	f := newSessionFixture(t)
	f.start(t)

	require.NoError(t, f.session.Close())
	require.NoError(t, f.session.Close())
	require.Equal(t, []string{testAuctionID}, f.rooms.leaves)
	require.Equal(t, SessionClosed, f.session.State())

	// Events after close must not surface.
	f.hub.d.DispatchBid(auctionhub.EventBidPlaced,
		bid("late", otherUser, 500, time.Date(2026, 3, 14, 12, 5, 0, 0, time.UTC)))
	require.Empty(t, f.session.Bids())

	_, err := f.session.PlaceBid(context.Background(), 100)
	require.ErrorIs(t, err, domain.ErrSessionClosed)
}

func TestSessionCloseDuringInFlightBidDropsResolution(t *testing.T) {
	f := newSessionFixture(t)
	f.start(t)

	gate := make(chan struct{})
	f.api.placeGate = gate

	done := make(chan error, 1)
	go func() {
		_, err := f.session.PlaceBid(context.Background(), 150)
		done <- err
	}()
	require.Eventually(t, f.session.IsPlacingBid, eventually, 10*time.Millisecond)

	require.NoError(t, f.session.Close())
	close(gate)

	require.ErrorIs(t, <-done, domain.ErrSessionClosed)

	// Nothing mutates after Close: the resolution neither confirms nor rolls
	// back, so the discarded view keeps its last snapshot as-is.
	bids := f.session.Bids()
	require.Len(t, bids, 1)
	require.True(t, bids[0].IsOptimistic())
}
