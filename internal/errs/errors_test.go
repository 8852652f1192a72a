package errs

import (
    "errors"
    "fmt"
    "testing"
)

func TestTypedErrorsMatchSentinels(t *testing.T) {
    cases := []struct {
        err  error
        want error
    }{
        {&UnbalancedEntryError{TransactionID: "t1"}, ErrUnbalanced},
        {&InsufficientStockError{ProductID: "p1"}, ErrInsufficientStock},
        {Invalid("quantity", "must be positive"), ErrInvalid},
        {&PreviousDayIncompleteError{UserID: "u1", Date: "2024-03-01"}, ErrPreviousDayOpen},
        {&AlreadyCompletedError{RecordID: "eod:1"}, ErrAlreadyCompleted},
        {&AlreadyCompletedError{RecordID: "eod:1"}, ErrImmutable},
        {&MissingSettingsError{ShopID: "s1", Field: "base_currency"}, ErrMissingSettings},
        {&ConflictError{DocumentID: "lot:1", Attempts: 3}, ErrConflict},
        {&EntryMismatchError{TransactionID: "sale-1", EntryID: "e1"}, ErrConflict},
    }
    for _, c := range cases {
        wrapped := fmt.Errorf("outer: %w", c.err)
        if !errors.Is(wrapped, c.want) {
            t.Fatalf("%T should match %v", c.err, c.want)
        }
    }
    if errors.Is(Invalid("x", "y"), ErrNotFound) {
        t.Fatalf("validation error must not match not found")
    }
}

func TestValidationErrorMessage(t *testing.T) {
    var ve *ValidationError
    err := fmt.Errorf("wrap: %w", Invalid("sale_id", "required"))
    if !errors.As(err, &ve) || ve.Field != "sale_id" {
        t.Fatalf("expected ValidationError, got %v", err)
    }
    if got := (&ValidationError{Reason: "bad"}).Error(); got != "validation: bad" {
        t.Fatalf("message: %q", got)
    }
}
