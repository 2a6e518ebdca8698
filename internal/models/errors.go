package models

import "errors"

var (
	// ErrAccountNotFound is returned for an unknown account identifier
	ErrAccountNotFound = errors.New("account not found")
	// ErrCustomerNotFound is returned for an unknown customer identifier
	ErrCustomerNotFound = errors.New("customer not found")
	// ErrCustomerHasAccounts rejects deleting a customer that still owns accounts
	ErrCustomerHasAccounts = errors.New("customer still owns accounts")
	// ErrInsufficientBalance is returned when a debit would break the balance floor
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInvalidTransfer covers bad transfer amounts and same-account transfers
	ErrInvalidTransfer = errors.New("invalid transfer")
	// ErrInvalidAmount is returned for non-positive debit/credit amounts
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrInvalidArgument is returned for malformed creation or query parameters
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrAccountNotActive is returned when mutating a suspended or not yet activated account
	ErrAccountNotActive = errors.New("account is not active")
	// ErrInvalidCredentials is returned on unknown user or password mismatch
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound is returned when the authenticated subject no longer exists
	ErrUserNotFound = errors.New("user not found")
	// ErrTokenExpired is returned for a token past its expiry
	ErrTokenExpired = errors.New("token expired")
	// ErrInvalidSignature is returned for a token that fails verification
	ErrInvalidSignature = errors.New("invalid token signature")
	// ErrInsufficientScope is returned when a token lacks the required scope
	ErrInsufficientScope = errors.New("insufficient scope")
	// ErrStoreUnavailable is a transient store failure; callers may retry with backoff
	ErrStoreUnavailable = errors.New("store unavailable")
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrAccountNotFound, "ACCOUNT_NOT_FOUND"},
	{ErrCustomerNotFound, "CUSTOMER_NOT_FOUND"},
	{ErrCustomerHasAccounts, "CUSTOMER_HAS_ACCOUNTS"},
	{ErrInsufficientBalance, "INSUFFICIENT_BALANCE"},
	{ErrInvalidTransfer, "INVALID_TRANSFER"},
	{ErrInvalidAmount, "INVALID_AMOUNT"},
	{ErrInvalidArgument, "INVALID_ARGUMENT"},
	{ErrAccountNotActive, "ACCOUNT_NOT_ACTIVE"},
	{ErrInvalidCredentials, "INVALID_CREDENTIALS"},
	{ErrUserNotFound, "USER_NOT_FOUND"},
	{ErrTokenExpired, "TOKEN_EXPIRED"},
	{ErrInvalidSignature, "INVALID_SIGNATURE"},
	{ErrInsufficientScope, "INSUFFICIENT_SCOPE"},
	{ErrStoreUnavailable, "STORE_UNAVAILABLE"},
}

// ErrorCode returns the stable machine-readable code for err, or "INTERNAL"
func ErrorCode(err error) string {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "INTERNAL"
}

// IsRetryable reports whether err is transient
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
