package polling

import (
	"math"
	"sync"
	"time"

	"github.com/cuemby/noteforge/pkg/config"
	"github.com/cuemby/noteforge/pkg/elog"
	"github.com/cuemby/noteforge/pkg/metrics"
	"github.com/rs/zerolog"
)

// Group is the priority-queued, rate-limited polling schedule for one
// process's set of tracked SDs.
type Group struct {
	mu sync.Mutex

	entries     map[NoteKey]*Entry
	highQueue   []NoteKey
	normalQueue []NoteKey

	openSets map[string]map[NoteKey]bool
	listSets map[string]map[NoteKey]bool

	normalPriorityReserve float64
	recentEditWindow      time.Duration
	fullRepollInterval    time.Duration

	limiter *rateLimiter
	now     func() time.Time
	logger  zerolog.Logger
}

// NewGroup builds a Group from cfg's polling settings.
func NewGroup(cfg *config.Config) *Group {
	return &Group{
		entries:               make(map[NoteKey]*Entry),
		openSets:              make(map[string]map[NoteKey]bool),
		listSets:              make(map[string]map[NoteKey]bool),
		normalPriorityReserve: cfg.NormalPriorityReserve,
		recentEditWindow:      time.Duration(cfg.RecentEditWindowMs) * time.Millisecond,
		fullRepollInterval:    time.Duration(cfg.FullRepollIntervalMs) * time.Millisecond,
		limiter:               newRateLimiter(cfg.PollRatePerMinute, cfg.HitRateMultiplier, cfg.MaxBurstPerSecond),
		now:                   time.Now,
		logger:                elog.WithComponent("polling.group"),
	}
}

// Add upserts an entry by (sdId, noteId), merging per-peer expected
// sequences to their maximum and upgrading priority on a high-reason
// collision (spec.md §4.9).
func (g *Group) Add(input AddInput) {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := NoteKey{SDID: input.SDID, NoteID: input.NoteID}
	if existing, ok := g.entries[key]; ok {
		for peer, seq := range input.ExpectedSequences {
			if seq > existing.ExpectedSequences[peer] {
				existing.ExpectedSequences[peer] = seq
			}
		}
		if input.Reason.intrinsicPriority() == PriorityHigh && existing.Priority == PriorityNormal {
			g.setPriority(key, existing, PriorityHigh)
		}
		return
	}

	expected := make(map[string]uint64, len(input.ExpectedSequences))
	for peer, seq := range input.ExpectedSequences {
		expected[peer] = seq
	}
	e := &Entry{
		SDID:              input.SDID,
		NoteID:            input.NoteID,
		ExpectedSequences: expected,
		CaughtUpSequences: make(map[string]bool),
		AddedAt:           g.now(),
		Reason:            input.Reason,
	}
	e.Priority = e.Reason.intrinsicPriority()
	if g.inAnyWindow(key) {
		e.Priority = PriorityHigh
	}
	g.entries[key] = e
	g.enqueue(key, e.Priority)
	metrics.PollingQueueDepth.WithLabelValues(string(e.Priority.label())).Inc()
}

// Remove drops an entry entirely.
func (g *Group) Remove(sdID, noteID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := NoteKey{SDID: sdID, NoteID: noteID}
	e, ok := g.entries[key]
	if !ok {
		return
	}
	delete(g.entries, key)
	g.dequeue(key, e.Priority)
	metrics.PollingQueueDepth.WithLabelValues(string(e.Priority.label())).Dec()
}

func (p Priority) label() string {
	if p == PriorityHigh {
		return "high"
	}
	return "normal"
}

func (g *Group) enqueue(key NoteKey, p Priority) {
	if p == PriorityHigh {
		g.highQueue = append(g.highQueue, key)
	} else {
		g.normalQueue = append(g.normalQueue, key)
	}
}

func (g *Group) dequeue(key NoteKey, p Priority) {
	q := &g.normalQueue
	if p == PriorityHigh {
		q = &g.highQueue
	}
	for i, k := range *q {
		if k == key {
			*q = append((*q)[:i], (*q)[i+1:]...)
			return
		}
	}
}

func (g *Group) setPriority(key NoteKey, e *Entry, newPriority Priority) {
	if e.Priority == newPriority {
		return
	}
	g.dequeue(key, e.Priority)
	metrics.PollingQueueDepth.WithLabelValues(e.Priority.label()).Dec()
	e.Priority = newPriority
	g.enqueue(key, newPriority)
	metrics.PollingQueueDepth.WithLabelValues(newPriority.label()).Inc()
}

// GetNextBatch selects up to maxCount entries under the current rate
// limit, splitting capacity between the priority queues and rotating
// each taken entry to the tail of its queue (spec.md §4.9).
func (g *Group) GetNextBatch(maxCount int) []*Entry {
	g.mu.Lock()
	defer g.mu.Unlock()

	available := g.limiter.availableCapacity(g.now())
	batch := maxCount
	if available < batch {
		batch = available
	}
	if batch <= 0 {
		return nil
	}

	highCount := len(g.highQueue)
	normalCount := len(g.normalQueue)

	var highCap, normalCap int
	switch {
	case normalCount == 0:
		highCap = batch
	case highCount == 0:
		normalCap = batch
	default:
		highCap = int(math.Ceil(float64(batch) * (1 - g.normalPriorityReserve)))
		if highCount < highCap {
			highCap = highCount
		}
		normalCap = batch - highCap
	}

	result := make([]*Entry, 0, batch)
	result = append(result, g.takeFromQueue(&g.highQueue, highCap)...)
	result = append(result, g.takeFromQueue(&g.normalQueue, normalCap)...)
	return result
}

// takeFromQueue pops up to n keys from the queue's head, resolves
// their entries, and pushes the keys back to the tail (round-robin).
func (g *Group) takeFromQueue(q *[]NoteKey, n int) []*Entry {
	if n <= 0 || len(*q) == 0 {
		return nil
	}
	if n > len(*q) {
		n = len(*q)
	}
	taken := (*q)[:n]
	*q = append((*q)[n:], taken...)

	out := make([]*Entry, 0, n)
	for _, key := range taken {
		if e, ok := g.entries[key]; ok {
			out = append(out, e)
		}
	}
	return out
}

// MarkPolled records a poll outcome for rate-limiting purposes.
func (g *Group) MarkPolled(sdID, noteID string, wasHit bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if e, ok := g.entries[NoteKey{SDID: sdID, NoteID: noteID}]; ok {
		e.LastPolledAt = now
		e.HasBeenPolled = true
	}
	g.limiter.record(now, wasHit)
}

// UpdateSequence marks peerID caught up if actualSeq satisfies (or
// exceeds) the sequence this entry is expecting from it.
func (g *Group) UpdateSequence(sdID, noteID, peerID string, actualSeq uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.entries[NoteKey{SDID: sdID, NoteID: noteID}]
	if !ok {
		return
	}
	expected, has := e.ExpectedSequences[peerID]
	if !has || actualSeq >= expected {
		e.CaughtUpSequences[peerID] = true
	}
}

// AddExpectedSequence raises the sequence this entry expects from
// peerID, un-marking it caught up until a fresh UpdateSequence confirms it.
func (g *Group) AddExpectedSequence(sdID, noteID, peerID string, seq uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.entries[NoteKey{SDID: sdID, NoteID: noteID}]
	if !ok {
		return
	}
	if seq > e.ExpectedSequences[peerID] {
		e.ExpectedSequences[peerID] = seq
		delete(e.CaughtUpSequences, peerID)
	}
}

// MarkSequenceCaughtUp is a direct bookkeeping helper for callers that
// already know peerID is caught up without an actualSeq comparison.
func (g *Group) MarkSequenceCaughtUp(sdID, noteID, peerID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if e, ok := g.entries[NoteKey{SDID: sdID, NoteID: noteID}]; ok {
		e.CaughtUpSequences[peerID] = true
	}
}

// CheckExitCriteria reports whether an entry's reason has been
// satisfied and it should be removed from the group (spec.md §4.9).
// An already-absent entry reports true (nothing left to exit).
func (g *Group) CheckExitCriteria(sdID, noteID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := NoteKey{SDID: sdID, NoteID: noteID}
	e, ok := g.entries[key]
	if !ok {
		return true
	}
	switch e.Reason {
	case ReasonFastPathHandoff:
		for peer := range e.ExpectedSequences {
			if !e.CaughtUpSequences[peer] {
				return false
			}
		}
	case ReasonFullRepoll:
		if !e.HasBeenPolled {
			return false
		}
	case ReasonOpenNote:
		if g.inOpenSets(key) {
			return false
		}
	case ReasonNotesList:
		if g.inListSets(key) {
			return false
		}
	case ReasonRecentEdit:
		if g.now().Sub(e.AddedAt) <= g.recentEditWindow {
			return false
		}
	}
	metrics.PollingBatchesTotal.WithLabelValues(string(e.Reason)).Inc()
	return true
}

// SetOpenNotes replaces windowID's open-note set and recomputes
// priority for every note whose membership changed.
func (g *Group) SetOpenNotes(windowID string, keys []NoteKey) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.replaceWindowSet(g.openSets, windowID, keys)
}

// SetListNotes replaces windowID's notes-list set.
func (g *Group) SetListNotes(windowID string, keys []NoteKey) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.replaceWindowSet(g.listSets, windowID, keys)
}

// CloseWindow removes windowID's contribution to both sets and
// recomputes priority for notes it affected.
func (g *Group) CloseWindow(windowID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	affected := make(map[NoteKey]bool)
	for k := range g.openSets[windowID] {
		affected[k] = true
	}
	for k := range g.listSets[windowID] {
		affected[k] = true
	}
	delete(g.openSets, windowID)
	delete(g.listSets, windowID)
	g.recomputeAffected(affected)
}

func (g *Group) replaceWindowSet(sets map[string]map[NoteKey]bool, windowID string, keys []NoteKey) {
	affected := make(map[NoteKey]bool)
	for k := range sets[windowID] {
		affected[k] = true
	}
	next := make(map[NoteKey]bool, len(keys))
	for _, k := range keys {
		next[k] = true
		affected[k] = true
	}
	sets[windowID] = next
	g.recomputeAffected(affected)
}

func (g *Group) recomputeAffected(affected map[NoteKey]bool) {
	for key := range affected {
		e, ok := g.entries[key]
		if !ok {
			continue
		}
		want := e.Reason.intrinsicPriority()
		if want == PriorityNormal && g.inAnyWindow(key) {
			want = PriorityHigh
		}
		g.setPriority(key, e, want)
	}
}

func (g *Group) inAnyWindow(key NoteKey) bool {
	return g.inOpenSets(key) || g.inListSets(key)
}

func (g *Group) inOpenSets(key NoteKey) bool {
	for _, set := range g.openSets {
		if set[key] {
			return true
		}
	}
	return false
}

// FullRepollInterval returns the configured full-repoll cadence; 0
// disables periodic full repolls entirely (spec.md §4.9).
func (g *Group) FullRepollInterval() time.Duration {
	return g.fullRepollInterval
}

func (g *Group) inListSets(key NoteKey) bool {
	for _, set := range g.listSets {
		if set[key] {
			return true
		}
	}
	return false
}
