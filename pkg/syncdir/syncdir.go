// Package syncdir manages the on-disk layout of one Storage Directory
// (SD): the persistent SD_ID, the SD-TYPE marker, the profile.lock
// liveness guard, and the directory tree spec.md §6 names. Every SD is
// a plain folder synced by a third-party cloud file-sync client; this
// package never talks to that client directly, only to the fsx
// collaborator.
package syncdir

import (
	"encoding/json"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/cuemby/noteforge/pkg/fsx"
	"github.com/cuemby/noteforge/pkg/ncerr"
	"github.com/google/uuid"
)

const (
	sdIDFile    = "SD_ID"
	sdTypeFile  = "SD-TYPE"
	lockFile    = "profile.lock"
	initRetries = 3
	retryDelay  = 50 * time.Millisecond
)

// Type distinguishes a dev SD (used by local development/test
// profiles) from a prod SD.
type Type string

const (
	TypeDev  Type = "dev"
	TypeProd Type = "prod"
)

// Dir wraps one SD root path and its filesystem collaborator.
type Dir struct {
	fs   fsx.FS
	root string
}

// New returns a Dir rooted at root. It does not touch disk.
func New(fs fsx.FS, root string) *Dir {
	return &Dir{fs: fs, root: root}
}

// Root returns the SD's root path.
func (d *Dir) Root() string { return d.root }

// Path joins elem onto the SD root.
func (d *Dir) Path(elem ...string) string {
	return d.fs.JoinPath(append([]string{d.root}, elem...)...)
}

// EnsureLayout creates the superset directory tree of spec.md §9:
// notes/, folders/{updates,meta}, activity/, deletion/, profiles/,
// media/. Mkdir is idempotent, so calling this against a legacy SD
// that predates the optional directories just fills in the gaps; it
// never fails on an existing tree and never removes anything.
func (d *Dir) EnsureLayout() error {
	dirs := []string{
		d.Path("notes"),
		d.Path("folders", "updates"),
		d.Path("folders", "meta"),
		d.Path("activity"),
		d.Path("deletion"),
		d.Path("profiles"),
		d.Path("media"),
	}
	for _, dir := range dirs {
		if err := d.fs.Mkdir(dir); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// NotePaths returns the four subdirectories scoped to one note.
func (d *Dir) NotePaths(noteID string) (logs, snapshots, meta, assets string) {
	base := d.Path("notes", noteID)
	return d.fs.JoinPath(base, "logs"),
		d.fs.JoinPath(base, "snapshots"),
		d.fs.JoinPath(base, "meta"),
		d.fs.JoinPath(base, "assets")
}

// EnsureNoteLayout creates one note's logs/snapshots/meta/packs/assets
// subdirectories.
func (d *Dir) EnsureNoteLayout(noteID string) error {
	base := d.Path("notes", noteID)
	for _, sub := range []string{"logs", "snapshots", "meta", "packs", "assets"} {
		if err := d.fs.Mkdir(d.fs.JoinPath(base, sub)); err != nil {
			return fmt.Errorf("failed to create note dir %s/%s: %w", noteID, sub, err)
		}
	}
	return nil
}

// InitializeUUID implements spec.md §6's initializeUuid: generate a
// UUID, write it to SD_ID, then re-read it to reconcile races with a
// concurrent instance. Whatever value is read back wins, even if it's
// not the one this instance wrote. Retries initRetries times with a
// short delay before giving up, per §7's "fatal after retries" note.
func (d *Dir) InitializeUUID() (string, error) {
	path := d.Path(sdIDFile)

	var lastErr error
	for attempt := 0; attempt < initRetries; attempt++ {
		if d.fs.Exists(path) {
			buf, err := d.fs.ReadFile(path)
			if err == nil {
				return string(buf), nil
			}
			lastErr = err
		} else {
			id := uuid.NewString()
			if err := d.fs.WriteFile(path, []byte(id)); err != nil {
				lastErr = err
			} else if buf, err := d.fs.ReadFile(path); err == nil {
				return string(buf), nil
			} else {
				lastErr = err
			}
		}
		time.Sleep(retryDelay)
	}
	return "", fmt.Errorf("failed to reconcile SD_ID after %d attempts: %w", initRetries, lastErr)
}

// EnsureMarker writes SD-TYPE if absent. It never overwrites an
// existing marker — spec.md §6's "ensureMarker does not overwrite an
// existing SD-TYPE".
func (d *Dir) EnsureMarker(t Type) error {
	path := d.Path(sdTypeFile)
	if d.fs.Exists(path) {
		return nil
	}
	return d.fs.WriteFile(path, []byte(t))
}

// ReadMarker returns the SD's recorded type, if any.
func (d *Dir) ReadMarker() (Type, bool, error) {
	path := d.Path(sdTypeFile)
	if !d.fs.Exists(path) {
		return "", false, nil
	}
	buf, err := d.fs.ReadFile(path)
	if err != nil {
		return "", false, err
	}
	return Type(buf), true, nil
}

// lockPayload is the profile.lock JSON body.
type lockPayload struct {
	PID       int   `json:"pid"`
	Timestamp int64 `json:"timestamp"`
}

// AcquireLock creates profile.lock with this process's pid and the
// current time, unless a live instance already holds it. Stale locks
// (recorded pid not alive) are reclaimed.
func (d *Dir) AcquireLock() error {
	path := d.Path(lockFile)

	if d.fs.Exists(path) {
		buf, err := d.fs.ReadFile(path)
		if err == nil {
			var held lockPayload
			if json.Unmarshal(buf, &held) == nil && pidAlive(held.PID) {
				return ncerr.ErrLockHeld
			}
		}
	}

	payload := lockPayload{PID: os.Getpid(), Timestamp: time.Now().UnixMilli()}
	buf, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return d.fs.WriteFile(path, buf)
}

// ReleaseLock removes profile.lock on clean shutdown.
func (d *Dir) ReleaseLock() error {
	path := d.Path(lockFile)
	if !d.fs.Exists(path) {
		return nil
	}
	return d.fs.DeleteFile(path)
}

// LockStatus is the result of a non-mutating ProbeLock call.
type LockStatus struct {
	Exists bool
	Alive  bool
	PID    int
	Stale  bool
}

// ProbeLock reports profile.lock's state without acquiring or
// removing it: whether it exists, who holds it, and whether that
// holder is still alive. A diagnostic counterpart to AcquireLock for
// tools like ncrepair that want to report on lock health without
// racing a live instance.
func (d *Dir) ProbeLock() (LockStatus, error) {
	path := d.Path(lockFile)
	if !d.fs.Exists(path) {
		return LockStatus{}, nil
	}
	buf, err := d.fs.ReadFile(path)
	if err != nil {
		return LockStatus{}, err
	}
	var held lockPayload
	if err := json.Unmarshal(buf, &held); err != nil {
		return LockStatus{Exists: true}, nil
	}
	alive := pidAlive(held.PID)
	return LockStatus{Exists: true, Alive: alive, PID: held.PID, Stale: !alive}, nil
}

// pidAlive reports whether pid names a live process, the liveness
// probe spec.md §6 requires of stale-lock detection.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Unix, FindProcess always succeeds; signal 0 probes liveness
	// without affecting the process.
	return proc.Signal(syscall.Signal(0)) == nil
}
