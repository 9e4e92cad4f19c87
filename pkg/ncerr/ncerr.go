// Package ncerr defines the error taxonomy shared by the storage
// engine's codec, log, snapshot, and activity-sync layers.
package ncerr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies one of the error categories of spec.md §7.
type Kind string

const (
	// KindTruncated marks a record or file cut short. Recoverable by
	// waiting: activity sync retries with backoff.
	KindTruncated Kind = "truncated"
	// KindBadMagic marks a file whose magic bytes don't match.
	KindBadMagic Kind = "bad_magic"
	// KindUnsupportedVersion marks a header version this build can't read.
	KindUnsupportedVersion Kind = "unsupported_version"
	// KindBadStatus marks a snapshot status byte outside {0x00, 0x01}.
	KindBadStatus Kind = "bad_status"
	// KindNegative marks an attempt to varint-encode a negative integer.
	KindNegative Kind = "negative"
	// KindOverflow marks a varint decode whose value exceeds the safe range.
	KindOverflow Kind = "overflow"
	// KindIncomplete marks a varint cut off before its continuation bit cleared.
	KindIncomplete Kind = "incomplete"
	// KindFinalized marks an append attempted after a log writer was finalized.
	KindFinalized Kind = "finalized"
	// KindSequenceViolation marks a sequence that isn't exactly previous+1.
	KindSequenceViolation Kind = "sequence_violation"
	// KindLockHeld marks a profile.lock already held by a live process.
	KindLockHeld Kind = "lock_held"
	// KindTimeout marks an activity-sync retry schedule that ran out.
	KindTimeout Kind = "timeout"
)

// Error wraps a Kind with context, in the style of the teacher's
// fmt.Errorf("...: %w", err) wrapping but carrying a matchable Kind.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind, so
// callers can write errors.Is(err, ncerr.New(ncerr.KindTruncated, "")).
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

// New builds an *Error with no wrapped cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap builds an *Error wrapping a lower-level cause.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// sentinels usable with errors.Is(err, ncerr.ErrTruncated) etc.
var (
	ErrTruncated          = New(KindTruncated, "truncated")
	ErrBadMagic           = New(KindBadMagic, "bad magic")
	ErrUnsupportedVersion = New(KindUnsupportedVersion, "unsupported version")
	ErrBadStatus          = New(KindBadStatus, "bad status")
	ErrNegative           = New(KindNegative, "negative value")
	ErrOverflow           = New(KindOverflow, "varint overflow")
	ErrIncomplete         = New(KindIncomplete, "incomplete varint")
	ErrFinalized          = New(KindFinalized, "log writer finalized")
	ErrSequenceViolation  = New(KindSequenceViolation, "sequence violation")
	ErrLockHeld           = New(KindLockHeld, "lock held by a live instance")
	ErrTimeout            = New(KindTimeout, "retry schedule exhausted")
)

// OfKind reports whether err (or anything it wraps) carries the given Kind.
func OfKind(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}

// retryableSubstrings is the loose substring match of spec.md §6: the
// filesystem collaborator may surface errors whose structured Kind we
// don't control (a bare os.PathError, say), so we also match on text.
var retryableSubstrings = []string{
	"ENOENT",
	"does not exist",
	"incomplete",
	"still being written",
	"Truncated record",
	"Truncated header",
}

// LooksRetryable implements the loose matching spec.md §4.8 step 4
// requires of pollAndReload: true for our own Kind-tagged truncation
// errors and for any error whose message contains one of the known
// transient substrings.
func LooksRetryable(err error) bool {
	if err == nil {
		return false
	}
	if OfKind(err, KindTruncated) {
		return true
	}
	msg := err.Error()
	for _, s := range retryableSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
