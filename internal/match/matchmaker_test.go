package match

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khelzone/platform/internal/domain"
	"github.com/khelzone/platform/internal/infra"
	"github.com/khelzone/platform/internal/realtime"
	"github.com/khelzone/platform/internal/repository"
	"github.com/khelzone/platform/internal/room"
)

type fakeTx struct {
	pgx.Tx
}

func (fakeTx) Commit(ctx context.Context) error   { return nil }
func (fakeTx) Rollback(ctx context.Context) error { return nil }

type fakeDB struct{}

func (fakeDB) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (fakeDB) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return nil, nil
}

func (fakeDB) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return nil
}

func (fakeDB) BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error) {
	return fakeTx{}, nil
}

type fakeQueue struct {
	repository.QueueRepository
	mu      sync.Mutex
	entries []domain.QueueEntry
}

func (q *fakeQueue) Replace(ctx context.Context, db repository.DBTX, entry *domain.QueueEntry) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.removeUser(entry.UserID)
	q.entries = append(q.entries, *entry)
	return nil
}

func (q *fakeQueue) DeleteByUser(ctx context.Context, db repository.DBTX, userID uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.removeUser(userID)
	return nil
}

func (q *fakeQueue) DeleteByID(ctx context.Context, db repository.DBTX, id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, e := range q.entries {
		if e.ID == id {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return nil
		}
	}
	return nil
}

func (q *fakeQueue) Groups(ctx context.Context, db repository.DBTX) (map[domain.QueueGroup]int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make(map[domain.QueueGroup]int)
	for _, e := range q.entries {
		out[domain.QueueGroup{GameType: e.GameType, MaxPlayers: e.MaxPlayers, EntryFee: e.EntryFee}]++
	}
	return out, nil
}

func (q *fakeQueue) OldestLocked(ctx context.Context, tx pgx.Tx, group domain.QueueGroup, limit int) ([]domain.QueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var matched []domain.QueueEntry
	for _, e := range q.entries {
		if e.GameType == group.GameType && e.MaxPlayers == group.MaxPlayers && e.EntryFee == group.EntryFee {
			matched = append(matched, e)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].EnqueuedAt.Before(matched[j].EnqueuedAt)
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (q *fakeQueue) removeUser(userID uuid.UUID) {
	for i, e := range q.entries {
		if e.UserID == userID {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return
		}
	}
}

func (q *fakeQueue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

type fakeLedger struct {
	debits  []domain.DebitParams
	failFor map[uuid.UUID]error
}

func (f *fakeLedger) ExecuteDebit(ctx context.Context, tx pgx.Tx, params domain.DebitParams) (*domain.CommandResult, error) {
	if err, ok := f.failFor[params.UserID]; ok {
		return nil, err
	}
	f.debits = append(f.debits, params)
	return &domain.CommandResult{}, nil
}

type fakeRooms struct {
	repository.RoomRepository
	rooms        []domain.Room
	participants []domain.Participant
}

func (f *fakeRooms) Insert(ctx context.Context, db repository.DBTX, r *domain.Room) error {
	f.rooms = append(f.rooms, *r)
	return nil
}

func (f *fakeRooms) InsertParticipant(ctx context.Context, db repository.DBTX, p *domain.Participant) error {
	f.participants = append(f.participants, *p)
	return nil
}

type fakeOutbox struct {
	drafts []domain.OutboxDraft
}

func (f *fakeOutbox) Insert(ctx context.Context, db repository.DBTX, draft domain.OutboxDraft) error {
	f.drafts = append(f.drafts, draft)
	return nil
}

type fakeHost struct {
	rooms []domain.Room
}

func (f *fakeHost) Create(r *domain.Room, participants []domain.Participant) (*room.Worker, error) {
	f.rooms = append(f.rooms, *r)
	return nil, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []struct {
		userID uuid.UUID
		event  string
		data   interface{}
	}
}

func (f *fakeNotifier) ToUser(userID uuid.UUID, event string, data interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, struct {
		userID uuid.UUID
		event  string
		data   interface{}
	}{userID, event, data})
}

func (f *fakeNotifier) count(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e.event == event {
			n++
		}
	}
	return n
}

type fixture struct {
	m      *Matchmaker
	queue  *fakeQueue
	ledger *fakeLedger
	rooms  *fakeRooms
	outbox *fakeOutbox
	host   *fakeHost
	bus    *fakeNotifier
}

func newFixture() *fixture {
	f := &fixture{
		queue:  &fakeQueue{},
		ledger: &fakeLedger{failFor: make(map[uuid.UUID]error)},
		rooms:  &fakeRooms{},
		outbox: &fakeOutbox{},
		host:   &fakeHost{},
		bus:    &fakeNotifier{},
	}
	cfg := &infra.Config{
		MatchmakerTick: time.Hour,
		EntryFeeMax:    1000000,
	}
	f.m = NewMatchmaker(fakeDB{}, f.queue, f.rooms, f.outbox, f.ledger, f.host, f.bus, cfg,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	return f
}

func enqueue(f *fixture, gameType domain.GameType, maxPlayers int, fee int64, at time.Time) domain.QueueEntry {
	entry := domain.QueueEntry{
		ID:         uuid.New(),
		UserID:     uuid.New(),
		GameType:   gameType,
		MaxPlayers: maxPlayers,
		EntryFee:   fee,
		EnqueuedAt: at,
	}
	f.queue.entries = append(f.queue.entries, entry)
	return entry
}

func TestSweepMatchesFullGroup(t *testing.T) {
	f := newFixture()
	now := time.Now()
	e1 := enqueue(f, domain.GameClassicLudo, 2, 10000, now)
	e2 := enqueue(f, domain.GameClassicLudo, 2, 10000, now.Add(time.Second))

	matched := f.m.sweepOnce(context.Background())
	require.True(t, matched)

	require.Len(t, f.rooms.rooms, 1)
	r := f.rooms.rooms[0]
	assert.Equal(t, domain.GameClassicLudo, r.GameType)
	assert.Equal(t, domain.RoomWaiting, r.Status)
	assert.Equal(t, int64(18000), r.PrizePool)

	require.Len(t, f.rooms.participants, 2)
	assert.Equal(t, e1.UserID, f.rooms.participants[0].UserID)
	assert.Equal(t, 0, f.rooms.participants[0].Seat)
	assert.Equal(t, domain.ColorRed, f.rooms.participants[0].Color)
	assert.Equal(t, e2.UserID, f.rooms.participants[1].UserID)
	assert.Equal(t, domain.ColorBlue, f.rooms.participants[1].Color)

	require.Len(t, f.ledger.debits, 2)
	for _, d := range f.ledger.debits {
		assert.Equal(t, domain.EntryGameEntry, d.Kind)
		assert.Equal(t, int64(10000), d.Amount)
		require.NotNil(t, d.GameID)
		assert.Equal(t, r.ID, *d.GameID)
	}

	assert.Zero(t, f.queue.size())
	require.Len(t, f.host.rooms, 1)
	assert.Equal(t, 2, f.bus.count(realtime.EvtMatchFound))
	f.bus.mu.Lock()
	for _, ev := range f.bus.events {
		if ev.event == realtime.EvtMatchFound {
			payload := ev.data.(map[string]interface{})
			assert.Equal(t, ev.userID.String(), payload["yourPlayerId"])
		}
	}
	f.bus.mu.Unlock()
	require.Len(t, f.outbox.drafts, 1)
	assert.Equal(t, domain.EventRoomCreated, f.outbox.drafts[0].EventType)
}

func TestSweepSkipsPartialGroup(t *testing.T) {
	f := newFixture()
	enqueue(f, domain.GameClassicLudo, 4, 10000, time.Now())
	enqueue(f, domain.GameClassicLudo, 4, 10000, time.Now())

	matched := f.m.sweepOnce(context.Background())
	assert.False(t, matched)
	assert.Empty(t, f.rooms.rooms)
	assert.Equal(t, 2, f.queue.size())
}

func TestSweepPrefersBusiestGroup(t *testing.T) {
	f := newFixture()
	now := time.Now()
	enqueue(f, domain.GameClassicLudo, 2, 10000, now)
	enqueue(f, domain.GameClassicLudo, 2, 10000, now)
	enqueue(f, domain.GameSnakesLadders, 2, 5000, now)
	enqueue(f, domain.GameSnakesLadders, 2, 5000, now)
	enqueue(f, domain.GameSnakesLadders, 2, 5000, now)

	require.True(t, f.m.sweepOnce(context.Background()))
	require.Len(t, f.rooms.rooms, 1)
	assert.Equal(t, domain.GameSnakesLadders, f.rooms.rooms[0].GameType)
}

func TestSweepFIFOWithinGroup(t *testing.T) {
	f := newFixture()
	now := time.Now()
	late := enqueue(f, domain.GameMemory, 2, 10000, now.Add(time.Minute))
	first := enqueue(f, domain.GameMemory, 2, 10000, now)
	second := enqueue(f, domain.GameMemory, 2, 10000, now.Add(time.Second))

	require.True(t, f.m.sweepOnce(context.Background()))
	require.Len(t, f.rooms.participants, 2)
	assert.Equal(t, first.UserID, f.rooms.participants[0].UserID)
	assert.Equal(t, second.UserID, f.rooms.participants[1].UserID)

	// The late joiner stays queued.
	assert.Equal(t, 1, f.queue.size())
	assert.Equal(t, late.UserID, f.queue.entries[0].UserID)
}

func TestSweepEvictsUnfundedUser(t *testing.T) {
	f := newFixture()
	now := time.Now()
	funded := enqueue(f, domain.GameClassicLudo, 2, 10000, now)
	broke := enqueue(f, domain.GameClassicLudo, 2, 10000, now.Add(time.Second))
	f.ledger.failFor[broke.UserID] = domain.ErrInsufficientBalance()

	matched := f.m.sweepOnce(context.Background())
	require.True(t, matched)

	assert.Empty(t, f.rooms.rooms)
	assert.Empty(t, f.host.rooms)
	assert.Equal(t, 1, f.bus.count(realtime.EvtMatchmakingError))

	// Only the unfunded entry is evicted; the funded user waits on.
	assert.Equal(t, 1, f.queue.size())
	assert.Equal(t, funded.UserID, f.queue.entries[0].UserID)
}

func TestSweepWaitsOutPersistentDebitFailure(t *testing.T) {
	f := newFixture()
	now := time.Now()
	enqueue(f, domain.GameClassicLudo, 2, 10000, now)
	ghost := enqueue(f, domain.GameClassicLudo, 2, 10000, now.Add(time.Second))
	f.ledger.failFor[ghost.UserID] = domain.ErrInternal("wallet lookup failed", nil)

	// A debit error that evicts nothing must not trigger a re-sweep of the
	// same group, or the sweep loop never returns.
	done := make(chan struct{})
	go func() {
		f.m.sweep(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweep kept re-selecting the group after a persistent debit failure")
	}

	assert.Empty(t, f.rooms.rooms)
	assert.Equal(t, 2, f.queue.size())
	assert.Zero(t, f.bus.count(realtime.EvtMatchmakingError))
}

func TestSweepFreeRoomSkipsDebits(t *testing.T) {
	f := newFixture()
	now := time.Now()
	enqueue(f, domain.GameMemory, 2, 0, now)
	enqueue(f, domain.GameMemory, 2, 0, now)

	require.True(t, f.m.sweepOnce(context.Background()))
	assert.Empty(t, f.ledger.debits)
	require.Len(t, f.rooms.rooms, 1)
	assert.Zero(t, f.rooms.rooms[0].PrizePool)
}

func TestEnqueueValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	userID := uuid.New()

	err := f.m.Enqueue(ctx, userID, "POKER", 2, 1000)
	require.Error(t, err)

	err = f.m.Enqueue(ctx, userID, domain.GameClassicLudo, 5, 1000)
	require.Error(t, err)

	err = f.m.Enqueue(ctx, userID, domain.GameClassicLudo, 2, 2000000)
	require.Error(t, err)

	err = f.m.Enqueue(ctx, userID, domain.GameClassicLudo, 2, -1)
	require.Error(t, err)

	require.NoError(t, f.m.Enqueue(ctx, userID, domain.GameClassicLudo, 2, 1000))
	assert.Equal(t, 1, f.queue.size())
}

func TestEnqueueReplacesExisting(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	userID := uuid.New()

	require.NoError(t, f.m.Enqueue(ctx, userID, domain.GameClassicLudo, 2, 1000))
	require.NoError(t, f.m.Enqueue(ctx, userID, domain.GameFastLudo, 4, 5000))

	require.Equal(t, 1, f.queue.size())
	assert.Equal(t, domain.GameFastLudo, f.queue.entries[0].GameType)
}

func TestDequeue(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	userID := uuid.New()

	require.NoError(t, f.m.Enqueue(ctx, userID, domain.GameClassicLudo, 2, 1000))
	require.NoError(t, f.m.Dequeue(ctx, userID))
	assert.Zero(t, f.queue.size())
}
