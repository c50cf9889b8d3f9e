package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/khelzone/platform/internal/domain"
	"github.com/khelzone/platform/internal/game"
	"github.com/khelzone/platform/internal/match"
	"github.com/khelzone/platform/internal/realtime"
	"github.com/khelzone/platform/internal/repository"
	"github.com/khelzone/platform/internal/room"
)

// WSHandler upgrades authenticated websocket sessions and routes the game
// events between the session bus, the matchmaker and the room registry.
type WSHandler struct {
	bus        *realtime.Bus
	registry   *realtime.Registry
	matchmaker *match.Matchmaker
	rooms      *room.Registry
	roomRepo   repository.RoomRepository
	db         repository.DBTX
	logger     *slog.Logger
}

// NewWSHandler creates the websocket handler and registers the event routes
// on the bus.
func NewWSHandler(bus *realtime.Bus, registry *realtime.Registry, matchmaker *match.Matchmaker, rooms *room.Registry, roomRepo repository.RoomRepository, db repository.DBTX, logger *slog.Logger) *WSHandler {
	h := &WSHandler{
		bus:        bus,
		registry:   registry,
		matchmaker: matchmaker,
		rooms:      rooms,
		roomRepo:   roomRepo,
		db:         db,
		logger:     logger,
	}

	bus.Handle(realtime.EvtJoinMatchmaking, h.joinMatchmaking)
	bus.Handle(realtime.EvtLeaveMatchmaking, h.leaveMatchmaking)
	bus.Handle(realtime.EvtJoinGameRoom, h.joinGameRoom)
	bus.Handle(realtime.EvtRollDice, h.gameAction(game.ActionRollDice))
	bus.Handle(realtime.EvtMovePiece, h.movePiece)
	bus.Handle(realtime.EvtSelectCard, h.selectCard)
	bus.OnDisconnect(h.onDisconnect)
	return h
}

// ServeWS handles GET /ws. Authentication middleware runs first; the
// subject claim identifies the user.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	h.bus.Serve(w, r, userID)
}

func (h *WSHandler) joinMatchmaking(client *realtime.Client, data json.RawMessage) {
	var payload realtime.JoinMatchmakingPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		h.sendError(client, domain.ErrValidation("malformed joinMatchmaking payload"))
		return
	}

	err := h.matchmaker.Enqueue(context.Background(), client.UserID,
		domain.GameType(payload.GameType), payload.MaxPlayers, payload.EntryFee)
	if err != nil {
		h.bus.ToConnection(client, realtime.EvtMatchmakingError, wsErrorPayload(err))
		return
	}

	h.bus.ToConnection(client, realtime.EvtMatchmakingStatus, map[string]interface{}{
		"status":     "queued",
		"gameType":   payload.GameType,
		"maxPlayers": payload.MaxPlayers,
		"entryFee":   payload.EntryFee,
	})
}

func (h *WSHandler) leaveMatchmaking(client *realtime.Client, data json.RawMessage) {
	if err := h.matchmaker.Dequeue(context.Background(), client.UserID); err != nil {
		h.sendError(client, domain.ErrInternal("leave matchmaking", err))
		return
	}
	h.bus.ToConnection(client, realtime.EvtMatchmakingStatus, map[string]interface{}{
		"status": "left",
	})
}

func (h *WSHandler) joinGameRoom(client *realtime.Client, data json.RawMessage) {
	var payload realtime.RoomPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		h.sendError(client, domain.ErrValidation("malformed joinGameRoom payload"))
		return
	}

	roomID, err := uuid.Parse(payload.GameID)
	if err != nil {
		h.sendError(client, domain.ErrValidation("invalid gameId"))
		return
	}

	worker, ok := h.rooms.Get(roomID)
	if !ok {
		// The worker is evicted after the grace period; a finished room
		// still answers late state queries from its persisted row.
		h.replayEvictedRoom(client, roomID)
		return
	}

	h.registry.JoinRoom(client.UserID, roomID)
	worker.Join(client.UserID)
}

func (h *WSHandler) replayEvictedRoom(client *realtime.Client, roomID uuid.UUID) {
	rm, err := h.roomRepo.FindByID(context.Background(), h.db, roomID)
	if err != nil {
		h.sendError(client, domain.ErrInternal("load room", err))
		return
	}
	if rm == nil || (rm.Status != domain.RoomFinished && rm.Status != domain.RoomCancelled) {
		h.sendError(client, domain.ErrNotFound("room", roomID.String()))
		return
	}

	payload := map[string]interface{}{
		"gameId":    rm.ID.String(),
		"status":    string(rm.Status),
		"winnerId":  nil,
		"prizePool": rm.PrizePool,
	}
	if rm.WinnerID != nil {
		payload["winnerId"] = rm.WinnerID.String()
	}
	h.bus.ToConnection(client, realtime.EvtGameEnded, payload)
}

func (h *WSHandler) gameAction(kind game.ActionKind) realtime.Handler {
	return func(client *realtime.Client, data json.RawMessage) {
		var payload realtime.RoomPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			h.sendError(client, domain.ErrValidation("malformed payload"))
			return
		}

		worker, _, err := h.lookupRoom(payload.GameID)
		if err != nil {
			h.sendError(client, err)
			return
		}
		worker.Act(client.UserID, game.Action{Kind: kind})
	}
}

func (h *WSHandler) movePiece(client *realtime.Client, data json.RawMessage) {
	var payload realtime.MovePiecePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		h.sendError(client, domain.ErrValidation("malformed movePiece payload"))
		return
	}

	worker, _, err := h.lookupRoom(payload.GameID)
	if err != nil {
		h.sendError(client, err)
		return
	}
	worker.Act(client.UserID, game.Action{Kind: game.ActionMovePiece, PieceID: payload.PieceID})
}

func (h *WSHandler) selectCard(client *realtime.Client, data json.RawMessage) {
	var payload realtime.SelectCardPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		h.sendError(client, domain.ErrValidation("malformed selectCard payload"))
		return
	}

	worker, _, err := h.lookupRoom(payload.GameID)
	if err != nil {
		h.sendError(client, err)
		return
	}
	worker.Act(client.UserID, game.Action{Kind: game.ActionSelectCard, Position: payload.Position})
}

// onDisconnect runs after a user's last socket drops. The rooms the user
// was in get a disconnect notification; the grace window decides the rest.
func (h *WSHandler) onDisconnect(userID uuid.UUID, leftRooms []uuid.UUID) {
	for _, roomID := range leftRooms {
		if worker, ok := h.rooms.Get(roomID); ok {
			worker.NotifyDisconnect(userID)
		}
	}
}

func (h *WSHandler) lookupRoom(gameID string) (*room.Worker, uuid.UUID, error) {
	roomID, err := uuid.Parse(gameID)
	if err != nil {
		return nil, uuid.Nil, domain.ErrValidation("invalid gameId")
	}
	worker, ok := h.rooms.Get(roomID)
	if !ok {
		return nil, uuid.Nil, domain.ErrNotFound("room", gameID)
	}
	return worker, roomID, nil
}

func (h *WSHandler) sendError(client *realtime.Client, err error) {
	h.bus.ToConnection(client, realtime.EvtError, wsErrorPayload(err))
}

func wsErrorPayload(err error) realtime.ErrorPayload {
	if appErr, ok := err.(*domain.AppError); ok {
		return realtime.ErrorPayload{Code: appErr.Code, Message: appErr.Message}
	}
	return realtime.ErrorPayload{Code: "INTERNAL_ERROR", Message: "something went wrong"}
}
