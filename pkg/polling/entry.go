// Package polling implements the polling group (C9): a priority
// queue of notes awaiting a poll, rate-limited against a rolling
// window of recent hit/miss history.
package polling

import "time"

// Reason is why an entry was added to the queue.
type Reason string

const (
	ReasonFastPathHandoff Reason = "fast-path-handoff"
	ReasonOpenNote        Reason = "open-note"
	ReasonNotesList       Reason = "notes-list"
	ReasonRecentEdit      Reason = "recent-edit"
	ReasonFullRepoll      Reason = "full-repoll"
)

// Priority is the queue an entry lives in.
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityHigh
)

// intrinsicPriority is the priority a reason carries regardless of
// window membership.
func (r Reason) intrinsicPriority() Priority {
	switch r {
	case ReasonOpenNote, ReasonNotesList, ReasonRecentEdit:
		return PriorityHigh
	default:
		return PriorityNormal
	}
}

// NoteKey identifies an entry by (sdId, noteId).
type NoteKey struct {
	SDID   string
	NoteID string
}

// AddInput is the upsert payload for Group.Add.
type AddInput struct {
	SDID              string
	NoteID            string
	Reason            Reason
	ExpectedSequences map[string]uint64
}

// Entry is one queued note awaiting a poll.
type Entry struct {
	SDID   string
	NoteID string

	ExpectedSequences map[string]uint64
	CaughtUpSequences map[string]bool

	AddedAt       time.Time
	LastPolledAt  time.Time
	HasBeenPolled bool

	Reason   Reason
	Priority Priority
}

func (e *Entry) Key() NoteKey {
	return NoteKey{SDID: e.SDID, NoteID: e.NoteID}
}
