package errs

import (
    "errors"
    "fmt"

    "github.com/shopspring/decimal"
)

// Common sentinel errors for cross-layer signaling.
var (
    ErrNotFound = errors.New("not_found")
    ErrConflict = errors.New("conflict")
    ErrInvalid  = errors.New("invalid")
    // ErrUnbalanced is an invariant violation: debits and credits differ in base currency.
    ErrUnbalanced         = errors.New("unbalanced_entry")
    ErrInsufficientStock  = errors.New("insufficient_stock")
    ErrPreviousDayOpen    = errors.New("previous_day_incomplete")
    ErrAlreadyCompleted   = errors.New("already_completed")
    ErrMissingSettings    = errors.New("missing_settings")
    // ErrImmutable indicates an attempt to change a posted entry or a completed record
    ErrImmutable = errors.New("immutable")
)

// UnbalancedEntryError is returned when an entry's base-currency debits and
// credits differ by more than the ledger epsilon. It is always a programming error.
type UnbalancedEntryError struct {
    TransactionID string
    Debits        decimal.Decimal
    Credits       decimal.Decimal
}

func (e *UnbalancedEntryError) Error() string {
    return fmt.Sprintf("unbalanced entry %s: debits %s != credits %s", e.TransactionID, e.Debits.String(), e.Credits.String())
}

func (e *UnbalancedEntryError) Is(target error) bool { return target == ErrUnbalanced }

// InsufficientStockError reports that FIFO allocation could not be satisfied.
type InsufficientStockError struct {
    ProductID string
    Requested decimal.Decimal
    Available decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
    return fmt.Sprintf("insufficient stock for %s: requested %s, available %s", e.ProductID, e.Requested.String(), e.Available.String())
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// ValidationError names the offending field.
type ValidationError struct {
    Field  string
    Reason string
}

func (e *ValidationError) Error() string {
    if e.Field == "" {
        return "validation: " + e.Reason
    }
    return "validation: " + e.Field + ": " + e.Reason
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalid }

// Invalid is shorthand for &ValidationError{Field: field, Reason: reason}.
func Invalid(field, reason string) error {
    return &ValidationError{Field: field, Reason: reason}
}

// PreviousDayIncompleteError blocks a day's close or new trading while an
// earlier day is still open.
type PreviousDayIncompleteError struct {
    UserID string
    Date   string
}

func (e *PreviousDayIncompleteError) Error() string {
    return fmt.Sprintf("previous trading day %s for user %s is not completed", e.Date, e.UserID)
}

func (e *PreviousDayIncompleteError) Is(target error) bool { return target == ErrPreviousDayOpen }

type AlreadyCompletedError struct {
    RecordID string
}

func (e *AlreadyCompletedError) Error() string {
    return "end of day " + e.RecordID + " is already completed"
}

func (e *AlreadyCompletedError) Is(target error) bool {
    return target == ErrAlreadyCompleted || target == ErrImmutable
}

// MissingSettingsError means the shop has no currency configuration.
type MissingSettingsError struct {
    ShopID string
    Field  string
}

func (e *MissingSettingsError) Error() string {
    if e.ShopID == "" {
        return "settings missing " + e.Field
    }
    return "settings for shop " + e.ShopID + " missing " + e.Field
}

func (e *MissingSettingsError) Is(target error) bool { return target == ErrMissingSettings }

// ConflictError surfaces a revision race that exhausted its retries.
type ConflictError struct {
    DocumentID string
    Attempts   int
}

func (e *ConflictError) Error() string {
    return fmt.Sprintf("conflict on %s after %d attempts", e.DocumentID, e.Attempts)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// EntryMismatchError means a transaction id was posted before with different
// lines. The stored entry stands; the caller must resend what it sent first.
type EntryMismatchError struct {
    TransactionID string
    EntryID       string
}

func (e *EntryMismatchError) Error() string {
    return "transaction " + e.TransactionID + " was already posted as entry " + e.EntryID + " with different lines"
}

func (e *EntryMismatchError) Is(target error) bool { return target == ErrConflict }
