package models

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedRecord marks a single snapshot entry that cannot become a row.
	ErrMalformedRecord = errors.New("malformed record")
	// ErrSchemaMismatch marks a value whose kind conflicts with the table schema.
	ErrSchemaMismatch = errors.New("schema mismatch")
	// ErrNoData marks an analysis over zero rows.
	ErrNoData = errors.New("no data")
)

// FetchErrorKind classifies data source failures.
type FetchErrorKind string

const (
	FetchNetwork           FetchErrorKind = "network"
	FetchRateLimited       FetchErrorKind = "rate_limited"
	FetchAuth              FetchErrorKind = "auth"
	FetchMalformedResponse FetchErrorKind = "malformed_response"
)

// FetchError is returned by every DataSource on failure. It is transient from
// the collector's point of view: the next iteration simply tries again.
type FetchError struct {
	Kind   FetchErrorKind
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s fetch failed (%s): %v", e.Source, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s fetch failed (%s)", e.Source, e.Kind)
}

func (e *FetchError) Unwrap() error { return e.Err }

// NewFetchError wraps err with a kind.
func NewFetchError(source string, kind FetchErrorKind, err error) *FetchError {
	return &FetchError{Kind: kind, Source: source, Err: err}
}

// FetchErrorKindOf returns the kind of a FetchError in err's chain, or "" if none.
func FetchErrorKindOf(err error) FetchErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// RecordError describes one skipped snapshot entry.
type RecordError struct {
	Index    int
	Identity string
	Reason   string
}

func (e *RecordError) Error() string {
	if e.Identity != "" {
		return fmt.Sprintf("entry %d (%s): %s", e.Index, e.Identity, e.Reason)
	}
	return fmt.Sprintf("entry %d: %s", e.Index, e.Reason)
}

func (e *RecordError) Unwrap() error { return ErrMalformedRecord }
