package polling

import (
	"github.com/cuemby/noteforge/pkg/elog"
	"github.com/fsnotify/fsnotify"
)

// Accelerator watches an SD's activity directory and nudges a poller
// to run its next cycle immediately instead of waiting for the next
// tick. It only changes *when* a cycle runs; results are still
// verified through the normal poll-and-confirm path, so a spurious or
// missed notification never produces an unverified reload.
type Accelerator struct {
	watcher *fsnotify.Watcher
	signal  chan struct{}
}

// NewAccelerator starts watching dir. If the watch cannot be
// established (e.g. a filesystem without inotify support) it returns
// a nil *Accelerator and the caller degrades to pure ticking.
func NewAccelerator(dir string) (*Accelerator, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}

	a := &Accelerator{
		watcher: w,
		signal:  make(chan struct{}, 1),
	}
	go a.run()
	return a, nil
}

func (a *Accelerator) run() {
	logger := elog.WithComponent("polling.accelerator")
	for {
		select {
		case event, ok := <-a.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			select {
			case a.signal <- struct{}{}:
			default:
			}
		case err, ok := <-a.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn().Err(err).Msg("activity directory watch error")
		}
	}
}

// Signal fires whenever the watched directory changes; consumers
// select on it alongside their normal ticker.
func (a *Accelerator) Signal() <-chan struct{} {
	return a.signal
}

// Close stops the watch.
func (a *Accelerator) Close() error {
	return a.watcher.Close()
}
