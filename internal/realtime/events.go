package realtime

import "encoding/json"

// Message is the wire envelope for both directions.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound event names.
const (
	EvtJoinMatchmaking  = "joinMatchmaking"
	EvtLeaveMatchmaking = "leaveMatchmaking"
	EvtJoinGameRoom     = "joinGameRoom"
	EvtRollDice         = "rollDice"
	EvtMovePiece        = "movePiece"
	EvtSelectCard       = "selectCard"
)

// Outbound event names.
const (
	EvtMatchFound        = "matchFound"
	EvtGameStarted       = "gameStarted"
	EvtTurnChanged       = "turnChanged"
	EvtTurnTimer         = "turnTimer"
	EvtTimerUpdate       = "timerUpdate"
	EvtDiceRolled        = "diceRolled"
	EvtPieceMoved        = "pieceMoved"
	EvtCardRevealed      = "cardRevealed"
	EvtCardsMatched      = "cardsMatched"
	EvtCardsMismatched   = "cardsMismatched"
	EvtLifelineLost      = "lifelineLost"
	EvtPlayerEliminated  = "playerEliminated"
	EvtGameEnded         = "gameEnded"
	EvtMatchmakingStatus = "matchmakingStatus"
	EvtMatchmakingError  = "matchmakingError"
	EvtError             = "error"
)

// JoinMatchmakingPayload is the joinMatchmaking request body.
type JoinMatchmakingPayload struct {
	GameType   string `json:"gameType"`
	MaxPlayers int    `json:"maxPlayers"`
	EntryFee   int64  `json:"entryFee"`
}

// RoomPayload addresses a room (joinGameRoom, rollDice).
type RoomPayload struct {
	GameID string `json:"gameId"`
}

// MovePiecePayload is the movePiece request body.
type MovePiecePayload struct {
	GameID  string `json:"gameId"`
	PieceID int    `json:"pieceId"`
}

// SelectCardPayload is the selectCard request body.
type SelectCardPayload struct {
	GameID   string `json:"gameId"`
	Position int    `json:"position"`
}

// ErrorPayload is the body of error and matchmakingError events.
type ErrorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}
