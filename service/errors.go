package service

import "errors"

// codedError is a sentinel with a stable machine-readable code
type codedError struct {
	code string
	msg  string
}

func (e *codedError) Error() string { return e.msg }

// Code returns the machine-readable code
func (e *codedError) Code() string { return e.code }

func newCodedError(code, msg string) error {
	return &codedError{code: code, msg: msg}
}

var (
	ErrRoomNotFound       = newCodedError("ROOM_NOT_FOUND", "room not found")
	ErrRoomNotJoinable    = newCodedError("ROOM_NOT_JOINABLE", "room is not accepting players")
	ErrRoomFull           = newCodedError("ROOM_FULL", "room is full")
	ErrInsufficientFunds  = newCodedError("INSUFFICIENT_FUNDS", "insufficient funds")
	ErrRoomNotRefundable  = newCodedError("ROOM_NOT_REFUNDABLE", "room cannot be refunded")
	ErrLockTimeout        = newCodedError("LOCK_TIMEOUT", "timed out waiting for room lock")
	ErrAccountUnavailable = newCodedError("ACCOUNT_UNAVAILABLE", "account storage unavailable")
	ErrInvalidRoomParams  = newCodedError("INVALID_ROOM_PARAMS", "invalid room parameters")
	ErrInvalidAmount      = newCodedError("INVALID_AMOUNT", "invalid amount")
	ErrStakeNotFound      = newCodedError("STAKE_NOT_FOUND", "stake not found")
	ErrStakeNotLocked     = newCodedError("STAKE_NOT_LOCKED", "stake is not locked")
	ErrStakeNotUnlockable = newCodedError("STAKE_NOT_UNLOCKABLE", "stake lock period has not elapsed")
)

// CodeInternal is returned by ErrorCode for errors outside the taxonomy
const CodeInternal = "INTERNAL"

// ErrorCode returns the code of the first coded error in err's chain
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var coded *codedError
	if errors.As(err, &coded) {
		return coded.code
	}
	return CodeInternal
}

// IsRetryable reports whether the caller should retry err with backoff
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLockTimeout)
}
