package domain

import (
	"time"

	"github.com/google/uuid"
)

// Balances is the two-column balance model (integer paise, numeric(15,0)).
// ReservedBalance holds funds frozen by a pending withdrawal.
type Balances struct {
	Balance         int64 `json:"balance"`
	ReservedBalance int64 `json:"reserved_balance"`
}

// Total returns the funds the user still owns, including withdrawal holds.
func (b Balances) Total() int64 { return b.Balance + b.ReservedBalance }

// User represents a users row. Created on first successful OTP
// verification; never destroyed.
type User struct {
	ID        uuid.UUID `json:"id"`
	Phone     string    `json:"phone"`
	Name      string    `json:"name"`
	Verified  bool      `json:"verified"`
	CreatedAt time.Time `json:"created_at"`
}

// Wallet is a wallets row, one-to-one with its user.
type Wallet struct {
	UserID uuid.UUID `json:"user_id"`
	Balances
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
