package domain

import (
	"fmt"
	"regexp"
)

var phoneRegex = regexp.MustCompile(`^\+?[0-9]{10,15}$`)

// ValidatePhone checks that a phone number is 10-15 digits with optional +.
func ValidatePhone(phone string) error {
	if phone == "" {
		return fmt.Errorf("phone is required")
	}
	if !phoneRegex.MatchString(phone) {
		return fmt.Errorf("invalid phone format")
	}
	return nil
}

// ValidatePositiveAmount checks that an amount is positive (in paise).
func ValidatePositiveAmount(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount(amount)
	}
	return nil
}

// ValidateEntryFee checks an entry fee against the configured cap.
// Zero is allowed: free rooms skip the matchmaking debit.
func ValidateEntryFee(fee, maxFee int64) error {
	if fee < 0 {
		return fmt.Errorf("entry fee must not be negative, got %d", fee)
	}
	if fee > maxFee {
		return fmt.Errorf("entry fee %d exceeds maximum %d", fee, maxFee)
	}
	return nil
}

// ValidateMaxPlayers checks the seat count for a game type.
// Memory and Ludo seat 2-4 players; Snakes & Ladders seats 2-4 as well.
func ValidateMaxPlayers(n int) error {
	if n < 2 || n > 4 {
		return fmt.Errorf("max players must be between 2 and 4, got %d", n)
	}
	return nil
}
