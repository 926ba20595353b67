package tokensale

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("tokensale: not found")
	ErrAlreadyExists = errors.New("tokensale: already exists")
	ErrUnauthorized  = errors.New("tokensale: unauthorized")

	// Registry errors
	ErrInvalidParameters = errors.New("tokensale: invalid sale parameters")
	ErrSaleNotFound      = errors.New("tokensale: sale not found")
	ErrUnknownCurve      = errors.New("tokensale: unknown pricing curve")

	// Purchase errors
	ErrSaleNotActive           = errors.New("tokensale: sale is not active")
	ErrInsufficientTokenSupply = errors.New("tokensale: insufficient token supply")
	ErrInsufficientFunds       = errors.New("tokensale: insufficient funds")

	// Pricing errors
	ErrNotWeighted = errors.New("tokensale: sale is not weighted")

	// Settlement errors
	ErrSaleNotEnded     = errors.New("tokensale: sale has not ended")
	ErrAlreadyWithdrawn = errors.New("tokensale: funds already withdrawn")

	// Store errors
	ErrStoreNotReady     = errors.New("tokensale: store not ready")
	ErrStoreClosed       = errors.New("tokensale: store is closed")
	ErrTransactionFailed = errors.New("tokensale: transaction failed")
	ErrMigrationFailed   = errors.New("tokensale: migration failed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
	// Cause is an optional more specific sentinel, such as ErrUnknownCurve.
	Cause error
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("tokensale: validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is match ErrInvalidParameters and the cause.
func (e ValidationError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrInvalidParameters, e.Cause}
	}
	return []error{ErrInvalidParameters}
}

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "tokensale: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("tokensale: %d errors occurred: %s", len(e.Errors), e.Errors[0])
}

// Unwrap exposes every collected error to errors.Is and errors.As.
func (e MultiError) Unwrap() []error {
	return e.Errors
}

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrSaleNotFound)
}

// IsRejected returns true if the error is a business rule rejection: the
// call was well formed but the sale refused it.
func IsRejected(err error) bool {
	return errors.Is(err, ErrSaleNotActive) ||
		errors.Is(err, ErrInsufficientTokenSupply) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrSaleNotEnded) ||
		errors.Is(err, ErrAlreadyWithdrawn) ||
		errors.Is(err, ErrNotWeighted) ||
		errors.Is(err, ErrUnauthorized)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreNotReady) ||
		errors.Is(err, ErrTransactionFailed)
}
