package match

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/khelzone/platform/internal/domain"
	"github.com/khelzone/platform/internal/infra"
	"github.com/khelzone/platform/internal/policy"
	"github.com/khelzone/platform/internal/realtime"
	"github.com/khelzone/platform/internal/repository"
	"github.com/khelzone/platform/internal/room"
)

// DB is the pool surface the matchmaker needs: plain queries plus
// serializable transactions (satisfied by pgxpool.Pool).
type DB interface {
	repository.DBTX
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// ledgerAPI is the slice of the ledger engine used to collect entry fees.
type ledgerAPI interface {
	ExecuteDebit(ctx context.Context, tx pgx.Tx, params domain.DebitParams) (*domain.CommandResult, error)
}

// RoomHost receives committed rooms and runs them.
type RoomHost interface {
	Create(r *domain.Room, participants []domain.Participant) (*room.Worker, error)
}

// Notifier delivers matchmaking outcomes to users.
type Notifier interface {
	ToUser(userID uuid.UUID, event string, data interface{})
}

// Matchmaker sweeps the queue on a fixed tick and turns full stake groups
// into rooms. A single goroutine runs all sweeps; a successful match
// triggers an immediate re-sweep so bursts drain without waiting a tick.
type Matchmaker struct {
	db     DB
	queue  repository.QueueRepository
	rooms  repository.RoomRepository
	outbox repository.OutboxRepository
	ledger ledgerAPI
	host   RoomHost
	bus    Notifier
	cfg    *infra.Config
	limits policy.LimitPolicy
	logger *slog.Logger

	kick chan struct{}
}

// NewMatchmaker wires the matchmaking sweep.
func NewMatchmaker(db DB, queue repository.QueueRepository, rooms repository.RoomRepository, outbox repository.OutboxRepository, ledger ledgerAPI, host RoomHost, bus Notifier, cfg *infra.Config, logger *slog.Logger) *Matchmaker {
	return &Matchmaker{
		db:     db,
		queue:  queue,
		rooms:  rooms,
		outbox: outbox,
		ledger: ledger,
		host:   host,
		bus:    bus,
		cfg:    cfg,
		limits: policy.LimitPolicy{EntryFeeMax: cfg.EntryFeeMax},
		logger: logger,
		kick:   make(chan struct{}, 1),
	}
}

// Run sweeps until the context is cancelled.
func (m *Matchmaker) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.MatchmakerTick)
	defer ticker.Stop()

	m.logger.Info("matchmaker started", "tick", m.cfg.MatchmakerTick)
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("matchmaker stopped")
			return
		case <-ticker.C:
		case <-m.kick:
		}
		m.sweep(ctx)
	}
}

// Enqueue replaces the user's queue entry with a fresh one.
func (m *Matchmaker) Enqueue(ctx context.Context, userID uuid.UUID, gameType domain.GameType, maxPlayers int, entryFee int64) error {
	if !domain.ValidGameType(gameType) {
		return domain.ErrValidation("unknown game type")
	}
	if maxPlayers < 2 || maxPlayers > 4 {
		return domain.ErrValidation("maxPlayers must be between 2 and 4")
	}
	if eval := policy.EvaluateEntryFee(m.limits, entryFee); !eval.Allowed {
		return domain.ErrValidation("entry fee out of range")
	}

	entry := &domain.QueueEntry{
		ID:         uuid.New(),
		UserID:     userID,
		GameType:   gameType,
		MaxPlayers: maxPlayers,
		EntryFee:   entryFee,
		EnqueuedAt: time.Now(),
	}
	if err := m.queue.Replace(ctx, m.db, entry); err != nil {
		return err
	}

	m.logger.Info("user enqueued",
		"userId", userID, "gameType", gameType, "maxPlayers", maxPlayers, "entryFee", entryFee)
	m.Kick()
	return nil
}

// Dequeue removes the user's queue entry, if any.
func (m *Matchmaker) Dequeue(ctx context.Context, userID uuid.UUID) error {
	return m.queue.DeleteByUser(ctx, m.db, userID)
}

// Kick requests an out-of-band sweep. Coalesces when one is pending.
func (m *Matchmaker) Kick() {
	select {
	case m.kick <- struct{}{}:
	default:
	}
}

func (m *Matchmaker) sweep(ctx context.Context) {
	for m.sweepOnce(ctx) {
	}
}

// sweepOnce matches at most one group and reports whether it did.
func (m *Matchmaker) sweepOnce(ctx context.Context) bool {
	groups, err := m.queue.Groups(ctx, m.db)
	if err != nil {
		m.logger.Error("queue group scan failed", "error", err)
		return false
	}

	ordered := make([]domain.QueueGroup, 0, len(groups))
	for g, count := range groups {
		if count >= g.MaxPlayers {
			ordered = append(ordered, g)
		}
	}
	sort.Slice(ordered, func(i, j int) bool {
		gi, gj := ordered[i], ordered[j]
		if groups[gi] != groups[gj] {
			return groups[gi] > groups[gj]
		}
		if gi.GameType != gj.GameType {
			return gi.GameType < gj.GameType
		}
		if gi.MaxPlayers != gj.MaxPlayers {
			return gi.MaxPlayers < gj.MaxPlayers
		}
		return gi.EntryFee < gj.EntryFee
	})

	for _, g := range ordered {
		if m.tryMatch(ctx, g) {
			return true
		}
	}
	return false
}

// tryMatch runs one serializable transaction for a full group: lock the
// oldest entries, debit entry fees, create the room and participants,
// delete the matched entries. Reports whether any work was done.
func (m *Matchmaker) tryMatch(ctx context.Context, group domain.QueueGroup) bool {
	tx, err := m.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		m.logger.Error("matchmaking tx begin failed", "error", err)
		return false
	}
	defer tx.Rollback(ctx)

	entries, err := m.queue.OldestLocked(ctx, tx, group, group.MaxPlayers)
	if err != nil {
		m.logger.Error("queue lock failed", "error", err)
		return false
	}
	if len(entries) < group.MaxPlayers {
		// A concurrent sweep or a leave drained the group.
		return false
	}

	newRoom := &domain.Room{
		ID:         uuid.New(),
		GameType:   group.GameType,
		MaxPlayers: group.MaxPlayers,
		EntryFee:   group.EntryFee,
		PrizePool:  domain.PrizePool(group.EntryFee, group.MaxPlayers),
		Status:     domain.RoomWaiting,
		CreatedAt:  time.Now(),
	}

	for _, entry := range entries {
		if entry.EntryFee == 0 {
			continue
		}
		_, err := m.ledger.ExecuteDebit(ctx, tx, domain.DebitParams{
			UserID: entry.UserID,
			Kind:   domain.EntryGameEntry,
			Amount: entry.EntryFee,
			Memo:   "entry fee",
			GameID: &newRoom.ID,
		})
		if err != nil {
			tx.Rollback(ctx)
			return m.evictUnfunded(ctx, entry, err)
		}
	}

	if err := m.rooms.Insert(ctx, tx, newRoom); err != nil {
		m.logger.Error("room insert failed", "error", err)
		return false
	}

	participants := make([]domain.Participant, len(entries))
	for i, entry := range entries {
		participants[i] = domain.Participant{
			RoomID: newRoom.ID,
			UserID: entry.UserID,
			Seat:   i,
			Color:  domain.SeatColors[i%len(domain.SeatColors)],
		}
		if err := m.rooms.InsertParticipant(ctx, tx, &participants[i]); err != nil {
			m.logger.Error("participant insert failed", "error", err)
			return false
		}
		if err := m.queue.DeleteByID(ctx, tx, entry.ID); err != nil {
			m.logger.Error("queue delete failed", "error", err)
			return false
		}
	}

	if err := m.outbox.Insert(ctx, tx, domain.NewRoomEvent(domain.EventRoomCreated, newRoom)); err != nil {
		m.logger.Error("room event insert failed", "error", err)
		return false
	}

	if err := tx.Commit(ctx); err != nil {
		m.logger.Error("matchmaking commit failed", "error", err)
		return false
	}

	m.logger.Info("match made",
		"roomId", newRoom.ID, "gameType", newRoom.GameType,
		"players", len(participants), "entryFee", newRoom.EntryFee)

	if _, err := m.host.Create(newRoom, participants); err != nil {
		m.logger.Error("room host failed", "roomId", newRoom.ID, "error", err)
	}
	m.notifyMatched(newRoom, participants)
	return true
}

// evictUnfunded drops the entry whose debit failed and tells the user.
// The other locked entries stay queued for the next sweep. Reports whether
// an entry was removed: a transient storage error leaves the queue intact,
// and the sweep must then wait for the next tick instead of re-selecting
// the same group forever.
func (m *Matchmaker) evictUnfunded(ctx context.Context, entry domain.QueueEntry, cause error) bool {
	var appErr *domain.AppError
	code := "INTERNAL_ERROR"
	if errors.As(cause, &appErr) {
		code = appErr.Code
	}
	if code != "INSUFFICIENT_BALANCE" {
		m.logger.Error("entry fee debit failed", "userId", entry.UserID, "error", cause)
		return false
	}

	if err := m.queue.DeleteByID(ctx, m.db, entry.ID); err != nil {
		m.logger.Error("unfunded entry delete failed", "userId", entry.UserID, "error", err)
		return false
	}
	m.bus.ToUser(entry.UserID, realtime.EvtMatchmakingError, realtime.ErrorPayload{
		Code:    code,
		Message: "insufficient balance for entry fee",
	})
	m.logger.Info("unfunded entry evicted", "userId", entry.UserID, "entryFee", entry.EntryFee)
	return true
}

func (m *Matchmaker) notifyMatched(r *domain.Room, participants []domain.Participant) {
	seats := make([]map[string]interface{}, len(participants))
	for i, p := range participants {
		seats[i] = map[string]interface{}{
			"userId": p.UserID.String(),
			"seat":   p.Seat,
			"color":  string(p.Color),
		}
	}
	for _, p := range participants {
		m.bus.ToUser(p.UserID, realtime.EvtMatchFound, map[string]interface{}{
			"gameId":       r.ID.String(),
			"gameType":     string(r.GameType),
			"entryFee":     r.EntryFee,
			"prizePool":    r.PrizePool,
			"yourPlayerId": p.UserID.String(),
			"seat":         p.Seat,
			"color":        string(domain.SeatColors[p.Seat%len(domain.SeatColors)]),
			"players":      seats,
		})
	}
}
