package activity

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/noteforge/pkg/elog"
	"github.com/cuemby/noteforge/pkg/fsx"
	"github.com/cuemby/noteforge/pkg/metrics"
	"github.com/cuemby/noteforge/pkg/ncerr"
	"github.com/rs/zerolog"
)

// Callbacks are the four side-effecting hooks Sync drives (spec.md §4.8).
type Callbacks struct {
	ReloadNote         func(noteID, sdID string) error
	GetLoadedNotes     func() []string
	CheckCRDTLogExists func(noteID, instanceID string, expectedSequence uint64) bool
	CheckNoteExists    func(noteID string) bool
}

// StaleEntry records a peer activity-log line whose gap behind that
// peer's highest known sequence exceeded the staleness threshold.
type StaleEntry struct {
	NoteID                      string
	PeerID                      string
	ExpectedSequence            uint64
	HighestSequenceFromInstance uint64
	Gap                         uint64
	DetectedAt                  time.Time
}

type pendingTarget struct {
	PeerID   string
	Sequence uint64
}

// Sync implements the cross-instance activity-sync scan and the
// per-note sync chains it drives (C8).
type Sync struct {
	fs             fsx.FS
	sdRoot         string
	sdID           string
	thisInstanceID string
	staleThreshold uint64
	backoff        []time.Duration
	callbacks      Callbacks
	logger         zerolog.Logger

	mu                     sync.Mutex
	lastSeenLineCount      map[string]int
	highestPendingSequence map[string]pendingTarget
	inFlight               map[string]bool
	staleEntries           []StaleEntry
	skippedEntries         map[string]bool

	wg sync.WaitGroup
}

// NewSync constructs a Sync scoped to one SD.
func NewSync(fs fsx.FS, sdRoot, sdID, thisInstanceID string, staleThreshold uint64, backoff []time.Duration, cb Callbacks) *Sync {
	return &Sync{
		fs:                     fs,
		sdRoot:                 sdRoot,
		sdID:                   sdID,
		thisInstanceID:         thisInstanceID,
		staleThreshold:         staleThreshold,
		backoff:                backoff,
		callbacks:              cb,
		logger:                 elog.WithComponent("activity.sync"),
		lastSeenLineCount:      make(map[string]int),
		highestPendingSequence: make(map[string]pendingTarget),
		inFlight:               make(map[string]bool),
		skippedEntries:         make(map[string]bool),
	}
}

// Skip marks (noteID, peerID) as user-skipped: pending and future
// stale entries for the pair are silently ignored and pollAndReload
// advances past them immediately.
func (s *Sync) Skip(noteID, peerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skippedEntries[skipKey(noteID, peerID)] = true
}

func skipKey(noteID, peerID string) string { return noteID + ":" + peerID }

// StaleEntries returns a snapshot of entries recorded so far.
func (s *Sync) StaleEntries() []StaleEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StaleEntry, len(s.staleEntries))
	copy(out, s.staleEntries)
	return out
}

// RunCycle implements one per-cycle procedure over every peer's
// activity log (spec.md §4.8).
func (s *Sync) RunCycle() error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ActivitySyncCycleDuration)
	defer metrics.ActivitySyncCyclesTotal.Inc()

	names, err := s.fs.ListFiles(s.fs.JoinPath(s.sdRoot, logDirName))
	if err != nil {
		return err
	}
	sort.Strings(names)

	for _, name := range names {
		if !strings.HasSuffix(name, ".log") {
			continue
		}
		peer := strings.TrimSuffix(name, ".log")
		if peer == s.thisInstanceID {
			continue
		}
		s.processPeerFile(peer)
	}
	return nil
}

func (s *Sync) processPeerFile(peer string) {
	path := s.fs.JoinPath(s.sdRoot, logDirName, peer+".log")
	buf, err := s.fs.ReadFile(path)
	if err != nil {
		s.logger.Warn().Str("peer", peer).Err(err).Msg("skipping unreadable peer activity log")
		return
	}
	lines := splitCompleteLines(buf)

	s.mu.Lock()
	seen := s.lastSeenLineCount[peer]
	s.mu.Unlock()

	if seen > 0 && len(lines) < seen {
		// Compaction/shrink detection: the file was rewritten smaller
		// since our last look. We may have missed entries; fall back
		// to reloading everything currently loaded.
		s.FullScan()
		s.mu.Lock()
		s.lastSeenLineCount[peer] = len(lines)
		s.mu.Unlock()
		return
	}

	var highest uint64
	for _, line := range lines {
		if e, ok := parseLine(line); ok && e.InstanceID == peer && e.Sequence > highest {
			highest = e.Sequence
		}
	}

	newLines := lines[seen:]
	for _, line := range newLines {
		e, ok := parseLine(line)
		if !ok {
			continue
		}
		gap := highest - e.Sequence
		if gap > s.staleThreshold {
			s.recordStale(e, highest, gap)
			continue
		}
		s.bumpTarget(e.NoteID, pendingTarget{PeerID: e.InstanceID, Sequence: e.Sequence})
	}

	s.mu.Lock()
	s.lastSeenLineCount[peer] = len(lines)
	s.mu.Unlock()
}

func (s *Sync) recordStale(e Entry, highest, gap uint64) {
	key := skipKey(e.NoteID, e.InstanceID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.skippedEntries[key] {
		return
	}
	for _, existing := range s.staleEntries {
		if existing.NoteID == e.NoteID && existing.PeerID == e.InstanceID {
			return // recorded once per (noteId, peerId)
		}
	}
	s.staleEntries = append(s.staleEntries, StaleEntry{
		NoteID:                      e.NoteID,
		PeerID:                      e.InstanceID,
		ExpectedSequence:            e.Sequence,
		HighestSequenceFromInstance: highest,
		Gap:                         gap,
		DetectedAt:                  time.Now(),
	})
}

// bumpTarget raises highestPendingSequence[noteID] and starts a sync
// chain if none is currently running for this note.
func (s *Sync) bumpTarget(noteID string, target pendingTarget) {
	s.mu.Lock()
	existing, ok := s.highestPendingSequence[noteID]
	if ok && target.Sequence <= existing.Sequence {
		s.mu.Unlock()
		return
	}
	s.highestPendingSequence[noteID] = target
	alreadyRunning := s.inFlight[noteID]
	if !alreadyRunning {
		s.inFlight[noteID] = true
	}
	s.mu.Unlock()

	if !alreadyRunning {
		s.wg.Add(1)
		go s.runChain(noteID)
	}
}

// runChain drains highestPendingSequence[noteID] until no target
// remains, polling for each in turn.
func (s *Sync) runChain(noteID string) {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		target, ok := s.highestPendingSequence[noteID]
		if ok {
			delete(s.highestPendingSequence, noteID)
			s.mu.Unlock()
			s.pollAndReload(target, noteID)
			continue
		}
		// Still holding the lock: clearing inFlight here, in the same
		// critical section as the empty check, closes the window
		// where a concurrent bumpTarget could see the map empty, add
		// a fresh target, and find inFlight still true — stranding
		// that target with nothing left to drain it.
		s.inFlight[noteID] = false
		s.mu.Unlock()
		return
	}
}

// pollAndReload implements spec.md §4.8's retry loop.
func (s *Sync) pollAndReload(target pendingTarget, noteID string) bool {
	key := skipKey(noteID, target.PeerID)

	s.mu.Lock()
	skipped := s.skippedEntries[key]
	s.mu.Unlock()
	if skipped {
		return true
	}

	if s.callbacks.CheckNoteExists != nil && !s.callbacks.CheckNoteExists(noteID) {
		return true
	}

	for _, delay := range s.backoff {
		s.mu.Lock()
		skipped = s.skippedEntries[key]
		s.mu.Unlock()
		if skipped {
			return true
		}

		if s.callbacks.CheckCRDTLogExists != nil && !s.callbacks.CheckCRDTLogExists(noteID, target.PeerID, target.Sequence) {
			metrics.ActivitySyncRetriesTotal.Inc()
			time.Sleep(delay)
			continue
		}

		err := s.callbacks.ReloadNote(noteID, s.sdID)
		if err == nil {
			metrics.ActivitySyncOutcomesTotal.WithLabelValues("poll_and_reload", "hit").Inc()
			return true
		}
		if ncerr.LooksRetryable(err) {
			metrics.ActivitySyncRetriesTotal.Inc()
			time.Sleep(delay)
			continue
		}

		s.logger.Warn().Str("note_id", noteID).Str("peer", target.PeerID).Err(err).Msg("reloadNote failed, not retrying")
		metrics.ActivitySyncOutcomesTotal.WithLabelValues("poll_and_reload", "miss").Inc()
		return false
	}

	s.logger.Warn().Str("note_id", noteID).Str("peer", target.PeerID).Msg("pollAndReload exhausted retry schedule")
	metrics.ActivitySyncOutcomesTotal.WithLabelValues("poll_and_reload", "timeout").Inc()
	return false
}

// FullScan reloads every currently loaded note, ignoring per-note
// errors, and returns the ids that reloaded successfully.
func (s *Sync) FullScan() []string {
	if s.callbacks.GetLoadedNotes == nil || s.callbacks.ReloadNote == nil {
		return nil
	}
	var ok []string
	for _, noteID := range s.callbacks.GetLoadedNotes() {
		if err := s.callbacks.ReloadNote(noteID, s.sdID); err == nil {
			ok = append(ok, noteID)
		}
	}
	return ok
}

// WaitForPendingSyncs blocks until every in-flight sync chain has
// ended, so the caller can guarantee causal ordering before notifying
// a renderer that a document changed.
func (s *Sync) WaitForPendingSyncs() {
	s.wg.Wait()
}

// Runner drives Sync.RunCycle on a fixed interval until stopped.
type Runner struct {
	s        *Sync
	interval time.Duration
	logger   zerolog.Logger
	stopCh   chan struct{}
}

// NewRunner returns a Runner that ticks s.RunCycle every interval.
func NewRunner(s *Sync, interval time.Duration) *Runner {
	return &Runner{
		s:        s,
		interval: interval,
		logger:   elog.WithComponent("activity.sync.runner"),
		stopCh:   make(chan struct{}),
	}
}

// Start begins the cycle loop in a goroutine.
func (r *Runner) Start() {
	go r.run()
}

// Stop halts the loop and waits for any in-flight sync chains.
func (r *Runner) Stop() {
	close(r.stopCh)
	r.s.WaitForPendingSyncs()
}

func (r *Runner) run() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info().Msg("activity sync runner started")

	for {
		select {
		case <-ticker.C:
			if err := r.s.RunCycle(); err != nil {
				r.logger.Error().Err(err).Msg("activity sync cycle failed")
			}
		case <-r.stopCh:
			r.logger.Info().Msg("activity sync runner stopped")
			return
		}
	}
}
