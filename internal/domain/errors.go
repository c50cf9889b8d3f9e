package domain

import "fmt"

// AppError is the base domain error type.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

// Standard domain error constructors.

func ErrNotFound(entity, id string) *AppError {
	return &AppError{Code: "NOT_FOUND", Message: fmt.Sprintf("%s %s not found", entity, id), Status: 404}
}

func ErrConflict(msg string) *AppError {
	return &AppError{Code: "CONFLICT", Message: msg, Status: 409}
}

func ErrValidation(msg string) *AppError {
	return &AppError{Code: "VALIDATION_ERROR", Message: msg, Status: 400}
}

func ErrUnauthorized(msg string) *AppError {
	return &AppError{Code: "UNAUTHORIZED", Message: msg, Status: 401}
}

func ErrForbidden(msg string) *AppError {
	return &AppError{Code: "FORBIDDEN", Message: msg, Status: 403}
}

func ErrInvalidAmount(amount int64) *AppError {
	return &AppError{Code: "INVALID_AMOUNT", Message: fmt.Sprintf("amount must be positive, got %d", amount), Status: 400}
}

func ErrInsufficientBalance() *AppError {
	return &AppError{Code: "INSUFFICIENT_BALANCE", Message: "insufficient balance", Status: 400}
}

func ErrSignatureInvalid() *AppError {
	return &AppError{Code: "SIGNATURE_INVALID", Message: "gateway signature verification failed", Status: 400}
}

// ErrWrongState covers actions attempted in the wrong room or entry state,
// e.g. rolling dice in a room that is not PLAYING.
func ErrWrongState(msg string) *AppError {
	return &AppError{Code: "WRONG_STATE", Message: msg, Status: 409}
}

func ErrNotYourTurn() *AppError {
	return &AppError{Code: "NOT_YOUR_TURN", Message: "it is not your turn", Status: 409}
}

func ErrNotParticipant(roomID string) *AppError {
	return &AppError{Code: "NOT_PARTICIPANT", Message: fmt.Sprintf("you are not a participant of room %s", roomID), Status: 403}
}

func ErrInternal(msg string, cause error) *AppError {
	return &AppError{Code: "INTERNAL_ERROR", Message: msg, Status: 500, Cause: cause}
}
