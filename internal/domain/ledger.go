package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EntryKind enumerates all ledger entry kinds.
type EntryKind string

const (
	EntryDeposit       EntryKind = "DEPOSIT"
	EntryWithdrawal    EntryKind = "WITHDRAWAL"
	EntryGameEntry     EntryKind = "GAME_ENTRY"
	EntryGameWinning   EntryKind = "GAME_WINNING"
	EntryRefund        EntryKind = "REFUND"
	EntryReferralBonus EntryKind = "REFERRAL_BONUS"
)

// Sign returns +1 for credit kinds and -1 for debit kinds.
func (k EntryKind) Sign() int64 {
	switch k {
	case EntryWithdrawal, EntryGameEntry:
		return -1
	default:
		return 1
	}
}

// EntryStatus is the lifecycle status of a ledger entry.
// Terminal transitions are PENDING → {COMPLETED, FAILED, CANCELLED} only.
type EntryStatus string

const (
	StatusPending   EntryStatus = "PENDING"
	StatusCompleted EntryStatus = "COMPLETED"
	StatusFailed    EntryStatus = "FAILED"
	StatusCancelled EntryStatus = "CANCELLED"
)

// LedgerEntry represents a ledger_entries row (append-only).
// Amount is a positive magnitude; Kind carries the sign.
type LedgerEntry struct {
	ID            uuid.UUID       `json:"id"`
	UserID        uuid.UUID       `json:"user_id"`
	Kind          EntryKind       `json:"kind"`
	Status        EntryStatus     `json:"status"`
	Amount        int64           `json:"amount"`
	BalanceAfter  int64           `json:"balance_after"`
	ReservedAfter int64           `json:"reserved_after"`
	GameID        *uuid.UUID      `json:"game_id,omitempty"`
	Receipt       *string         `json:"receipt,omitempty"`
	Memo          string          `json:"memo,omitempty"`
	Metadata      json.RawMessage `json:"metadata"`
	CreatedAt     time.Time       `json:"created_at"`
}

// SignedAmount returns the amount with the sign implied by Kind.
func (e *LedgerEntry) SignedAmount() int64 { return e.Kind.Sign() * e.Amount }

// BalanceUpdate describes which wallet columns to update and by how much.
// Used by PostLedgerEntry to build the dynamic UPDATE statement.
type BalanceUpdate struct {
	Balance  int64 // delta for balance column
	Reserved int64 // delta for reserved_balance column
}

// HasBalanceDelta returns true if the available balance changes.
func (u BalanceUpdate) HasBalanceDelta() bool { return u.Balance != 0 }

// HasReservedDelta returns true if the withdrawal hold changes.
func (u BalanceUpdate) HasReservedDelta() bool { return u.Reserved != 0 }

// PostLedgerEntryParams is the input to the atomic PostLedgerEntry operation.
type PostLedgerEntryParams struct {
	UserID        uuid.UUID
	Kind          EntryKind
	Status        EntryStatus
	Amount        int64
	BalanceUpdate BalanceUpdate
	GameID        *uuid.UUID
	Receipt       *string
	Memo          string
	Metadata      json.RawMessage
}

// CommandResult is the return value from all ledger commands.
type CommandResult struct {
	Entry      *LedgerEntry
	Wallet     *Wallet
	Idempotent bool // true if this was a duplicate that returned an existing entry
}

// CreditParams holds the input for Credit.
type CreditParams struct {
	UserID   uuid.UUID
	Kind     EntryKind
	Amount   int64
	Memo     string
	GameID   *uuid.UUID
	Metadata json.RawMessage
}

// DebitParams holds the input for Debit.
type DebitParams struct {
	UserID   uuid.UUID
	Kind     EntryKind
	Amount   int64
	Memo     string
	GameID   *uuid.UUID
	Metadata json.RawMessage
}

// ReserveDepositParams holds the input for ReserveDeposit.
type ReserveDepositParams struct {
	UserID   uuid.UUID
	Amount   int64
	Metadata json.RawMessage
}

// ConfirmDepositParams carries the gateway receipt for ConfirmDeposit.
// Signature must equal HMAC-SHA256(secret, OrderID+"|"+PaymentID).
type ConfirmDepositParams struct {
	PendingID uuid.UUID
	OrderID   string
	PaymentID string
	Signature string
}

// RequestWithdrawalParams holds the input for RequestWithdrawal.
type RequestWithdrawalParams struct {
	UserID      uuid.UUID
	Amount      int64
	BankDetails json.RawMessage
}

// RefundParams holds the input for Refund: an entry fee returned to a
// participant of a cancelled room.
type RefundParams struct {
	UserID uuid.UUID
	GameID uuid.UUID
	Amount int64
	Reason string
}
