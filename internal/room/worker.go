package room

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/khelzone/platform/internal/domain"
	"github.com/khelzone/platform/internal/game"
	"github.com/khelzone/platform/internal/infra"
	"github.com/khelzone/platform/internal/realtime"
	"github.com/khelzone/platform/internal/repository"
)

// Broadcaster fans events out to the room audience.
type Broadcaster interface {
	ToRoom(roomID uuid.UUID, event string, data interface{})
	ToUser(userID uuid.UUID, event string, data interface{})
}

// Presence reports whether a user still has a live socket.
type Presence interface {
	IsOnline(userID uuid.UUID) bool
}

// Settlement pays out finished rooms and refunds cancelled ones.
type Settlement interface {
	SettleWinner(ctx context.Context, room *domain.Room, winnerID uuid.UUID) error
	CancelRoom(ctx context.Context, room *domain.Room) error
}

// Deps are the shared services every room worker needs.
type Deps struct {
	DB       repository.DBTX
	Rooms    repository.RoomRepository
	Bus      Broadcaster
	Presence Presence
	Settler  Settlement
	Config   *infra.Config
	Logger   *slog.Logger
}

const inboxSize = 64

// Worker owns one live room. A single goroutine drains the inbox; every
// mutation (player actions, clock expiry, scheduled resolutions, disconnect
// checks) enters as an inbox message, so the engine never sees concurrency.
type Worker struct {
	deps         Deps
	room         *domain.Room
	participants []domain.Participant
	engine       game.Engine

	inbox    chan func()
	done     chan struct{}
	stopOnce sync.Once
	clock    *Clock

	joined  map[uuid.UUID]bool
	offline map[uuid.UUID]bool

	onEvict func(roomID uuid.UUID)
}

// newWorker builds the worker and its engine. If the room row carries an
// engine snapshot the state is restored, otherwise the engine starts fresh
// and the game begins after the auto-start window.
func newWorker(deps Deps, room *domain.Room, participants []domain.Participant, onEvict func(uuid.UUID)) (*Worker, error) {
	players := make([]game.Player, len(participants))
	for i, p := range participants {
		players[i] = game.Player{ID: p.UserID, Seat: p.Seat, Color: p.Color}
	}

	engine, err := game.New(room.GameType, room.ID, players, game.Config{
		MemoryPairs:     deps.Config.MemoryPairs,
		MemoryLifelines: deps.Config.MemoryLifelines,
		MemoryTurnTimer: deps.Config.MemoryTurnTimer,
		FastTimer2P:     deps.Config.FastLudoTimer2P,
		FastTimerMulti:  deps.Config.FastLudoTimerMulti,
	})
	if err != nil {
		return nil, err
	}
	if room.Status == domain.RoomPlaying && len(room.EngineState) > 0 {
		if err := engine.Restore(room.EngineState); err != nil {
			return nil, err
		}
	}

	w := &Worker{
		deps:         deps,
		room:         room,
		participants: participants,
		engine:       engine,
		inbox:        make(chan func(), inboxSize),
		done:         make(chan struct{}),
		clock:        NewClock(),
		joined:       make(map[uuid.UUID]bool),
		offline:      make(map[uuid.UUID]bool),
		onEvict:      onEvict,
	}

	go w.run()
	if room.Status == domain.RoomWaiting {
		time.AfterFunc(deps.Config.AutoStartDelay, func() {
			w.post(w.start)
		})
	}
	return w, nil
}

func (w *Worker) run() {
	for {
		select {
		case fn := <-w.inbox:
			fn()
		case <-w.done:
			return
		}
	}
}

func (w *Worker) post(fn func()) {
	select {
	case w.inbox <- fn:
	case <-w.done:
	}
}

// RoomID returns the immutable room identifier.
func (w *Worker) RoomID() uuid.UUID { return w.room.ID }

// Join admits a participant to the live room and replays current state.
func (w *Worker) Join(userID uuid.UUID) {
	w.post(func() { w.handleJoin(userID) })
}

// Act applies a player action to the engine.
func (w *Worker) Act(userID uuid.UUID, action game.Action) {
	w.post(func() { w.handleAction(userID, action) })
}

// NotifyDisconnect records that a participant lost their last socket.
// The game only reacts after the disconnect grace window.
func (w *Worker) NotifyDisconnect(userID uuid.UUID) {
	w.post(func() { w.handleDisconnect(userID) })
}

// Cancel aborts a room that never started and refunds its entries.
func (w *Worker) Cancel() {
	w.post(w.cancel)
}

// Stop terminates the worker goroutine. Pending inbox messages are dropped.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		w.clock.Cancel()
		close(w.done)
	})
}

func (w *Worker) handleJoin(userID uuid.UUID) {
	if w.seatOf(userID) < 0 {
		w.deps.Bus.ToUser(userID, realtime.EvtError, errorPayload(domain.ErrNotParticipant(w.room.ID.String())))
		return
	}

	w.joined[userID] = true
	delete(w.offline, userID)

	switch w.room.Status {
	case domain.RoomWaiting:
		w.deps.Bus.ToUser(userID, realtime.EvtMatchmakingStatus, map[string]interface{}{
			"gameId": w.room.ID.String(),
			"status": string(domain.RoomWaiting),
		})
		if len(w.joined) == len(w.participants) {
			w.start()
		}
	case domain.RoomPlaying:
		// Reconnect: replay the header and the full board state.
		w.deps.Bus.ToUser(userID, realtime.EvtGameStarted, w.startPayload())
	case domain.RoomFinished, domain.RoomCancelled:
		w.deps.Bus.ToUser(userID, realtime.EvtGameEnded, w.endPayload())
	}
}

func (w *Worker) start() {
	if w.room.Status != domain.RoomWaiting {
		return
	}

	res, err := w.engine.Init()
	if err != nil {
		w.deps.Logger.Error("engine init failed", "roomId", w.room.ID, "error", err)
		w.cancel()
		return
	}

	now := time.Now()
	w.room.Status = domain.RoomPlaying
	w.room.StartedAt = &now

	w.deps.Logger.Info("room started",
		"roomId", w.room.ID, "gameType", w.room.GameType, "players", len(w.participants))
	w.deps.Bus.ToRoom(w.room.ID, realtime.EvtGameStarted, w.startPayload())
	w.applyResult(res)
}

func (w *Worker) handleAction(userID uuid.UUID, action game.Action) {
	if w.room.Status != domain.RoomPlaying {
		w.deps.Bus.ToUser(userID, realtime.EvtError, errorPayload(domain.ErrWrongState("room is not playing")))
		return
	}
	if w.seatOf(userID) < 0 {
		w.deps.Bus.ToUser(userID, realtime.EvtError, errorPayload(domain.ErrNotParticipant(w.room.ID.String())))
		return
	}

	res, err := w.engine.Apply(userID, action)
	if err != nil {
		w.deps.Bus.ToUser(userID, realtime.EvtError, errorPayload(err))
		return
	}
	w.applyResult(res)
}

func (w *Worker) resolve(tag string) {
	if w.room.Status != domain.RoomPlaying {
		return
	}
	res, err := w.engine.Resolve(tag)
	if err != nil {
		w.deps.Logger.Error("resolve failed", "roomId", w.room.ID, "tag", tag, "error", err)
		return
	}
	w.applyResult(res)
}

func (w *Worker) handleTimeout() {
	if w.room.Status != domain.RoomPlaying {
		return
	}
	res, err := w.engine.OnTimeout()
	if err != nil {
		w.deps.Logger.Error("timeout handling failed", "roomId", w.room.ID, "error", err)
		return
	}
	w.applyResult(res)
}

// applyResult broadcasts the engine's events and executes its schedule:
// clock changes, delayed resolutions and the terminal transition.
func (w *Worker) applyResult(res *game.Result) {
	if res == nil {
		return
	}
	for _, ev := range res.Events {
		w.deps.Bus.ToRoom(w.room.ID, ev.Name, ev.Payload)
	}

	if res.StopClock {
		w.clock.Cancel()
	}
	if res.StartClock > 0 {
		w.startClock(res.StartClock)
	}
	if res.Delay > 0 {
		tag := res.DelayTag
		time.AfterFunc(res.Delay, func() {
			w.post(func() { w.resolve(tag) })
		})
	}

	if w.engine.Terminal() {
		winner, ok := w.engine.Winner()
		w.finish(winner, ok)
		return
	}
	w.persist()
}

func (w *Worker) startClock(d time.Duration) {
	w.deps.Bus.ToRoom(w.room.ID, realtime.EvtTurnTimer, map[string]interface{}{
		"totalSeconds": int(d.Seconds()),
	})
	roomID := w.room.ID
	w.clock.Start(d,
		func(remaining time.Duration) {
			w.deps.Bus.ToRoom(roomID, realtime.EvtTimerUpdate, map[string]interface{}{
				"remaining": int(remaining.Seconds()),
			})
		},
		func() {
			w.post(w.handleTimeout)
		})
}

func (w *Worker) handleDisconnect(userID uuid.UUID) {
	if w.seatOf(userID) < 0 {
		return
	}
	delete(w.joined, userID)
	if w.room.Status != domain.RoomPlaying {
		return
	}

	time.AfterFunc(w.deps.Config.DisconnectGrace, func() {
		w.post(func() { w.graceCheck(userID) })
	})
}

// graceCheck runs after the disconnect grace window. A reconnect within the
// window leaves the game untouched; otherwise the player is marked departed
// and a lone remaining participant wins the room.
func (w *Worker) graceCheck(userID uuid.UUID) {
	if w.room.Status != domain.RoomPlaying {
		return
	}
	if w.deps.Presence.IsOnline(userID) {
		return
	}
	w.offline[userID] = true

	var survivors []uuid.UUID
	for _, p := range w.participants {
		if !w.offline[p.UserID] {
			survivors = append(survivors, p.UserID)
		}
	}
	if len(survivors) == 1 {
		w.deps.Logger.Info("survivor wins by disconnect",
			"roomId", w.room.ID, "winnerId", survivors[0], "departed", userID)
		w.finish(survivors[0], true)
	}
}

func (w *Worker) finish(winnerID uuid.UUID, hasWinner bool) {
	if w.room.Status != domain.RoomPlaying {
		return
	}

	w.clock.Cancel()
	now := time.Now()
	w.room.Status = domain.RoomFinished
	w.room.FinishedAt = &now
	if hasWinner {
		w.room.WinnerID = &winnerID
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for userID, score := range w.engine.Scores() {
		if err := w.deps.Rooms.UpdateScore(ctx, w.deps.DB, w.room.ID, userID, score); err != nil {
			w.deps.Logger.Error("score persist failed", "roomId", w.room.ID, "userId", userID, "error", err)
		}
	}
	w.persist()

	w.deps.Bus.ToRoom(w.room.ID, realtime.EvtGameEnded, w.endPayload())

	if hasWinner {
		if err := w.deps.Settler.SettleWinner(ctx, w.room, winnerID); err != nil {
			w.deps.Logger.Error("settlement failed", "roomId", w.room.ID, "winnerId", winnerID, "error", err)
		}
	}
	w.scheduleEvict()
}

func (w *Worker) cancel() {
	if w.room.Status != domain.RoomWaiting {
		return
	}

	w.room.Status = domain.RoomCancelled
	now := time.Now()
	w.room.FinishedAt = &now
	w.persist()

	ctx, cancelFn := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelFn()
	if err := w.deps.Settler.CancelRoom(ctx, w.room); err != nil {
		w.deps.Logger.Error("cancel refund failed", "roomId", w.room.ID, "error", err)
	}

	w.deps.Bus.ToRoom(w.room.ID, realtime.EvtGameEnded, w.endPayload())
	w.scheduleEvict()
}

// scheduleEvict keeps the finished room around for late state queries,
// then stops the worker and drops it from the registry.
func (w *Worker) scheduleEvict() {
	roomID := w.room.ID
	time.AfterFunc(w.deps.Config.RoomGracePeriod, func() {
		w.Stop()
		if w.onEvict != nil {
			w.onEvict(roomID)
		}
	})
}

func (w *Worker) persist() {
	if w.room.Status == domain.RoomPlaying || w.room.Status == domain.RoomFinished {
		snap, err := w.engine.Snapshot()
		if err != nil {
			w.deps.Logger.Error("snapshot failed", "roomId", w.room.ID, "error", err)
		} else {
			w.room.EngineState = snap
		}
		if !w.engine.Terminal() {
			w.room.CurrentTurnIndex = w.seatOf(w.engine.CurrentActor())
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.deps.Rooms.SaveSnapshot(ctx, w.deps.DB, w.room); err != nil {
		w.deps.Logger.Error("room persist failed", "roomId", w.room.ID, "error", err)
	}
}

func (w *Worker) seatOf(userID uuid.UUID) int {
	for _, p := range w.participants {
		if p.UserID == userID {
			return p.Seat
		}
	}
	return -1
}

func (w *Worker) startPayload() map[string]interface{} {
	players := make([]map[string]interface{}, len(w.participants))
	for i, p := range w.participants {
		players[i] = map[string]interface{}{
			"userId": p.UserID.String(),
			"seat":   p.Seat,
			"color":  string(p.Color),
		}
	}
	return map[string]interface{}{
		"gameId":       w.room.ID.String(),
		"gameType":     string(w.room.GameType),
		"entryFee":     w.room.EntryFee,
		"prizePool":    w.room.PrizePool,
		"players":      players,
		"scores":       scoreBoard(w.engine.Scores()),
		"currentTurn":  w.engine.CurrentActor().String(),
		"initialState": w.engine.State(),
	}
}

func (w *Worker) endPayload() map[string]interface{} {
	payload := map[string]interface{}{
		"gameId":      w.room.ID.String(),
		"status":      string(w.room.Status),
		"winnerId":    nil,
		"finalScores": scoreBoard(w.engine.Scores()),
		"prizePool":   w.room.PrizePool,
	}
	if w.room.WinnerID != nil {
		payload["winnerId"] = w.room.WinnerID.String()
	}
	return payload
}

func scoreBoard(scores map[uuid.UUID]int) map[string]int {
	out := make(map[string]int, len(scores))
	for id, score := range scores {
		out[id.String()] = score
	}
	return out
}

func errorPayload(err error) realtime.ErrorPayload {
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		return realtime.ErrorPayload{Code: appErr.Code, Message: appErr.Message}
	}
	return realtime.ErrorPayload{Code: "INTERNAL_ERROR", Message: "something went wrong"}
}
