package polling

import (
	"time"

	"github.com/cuemby/noteforge/pkg/elog"
	"github.com/rs/zerolog"
)

// PollFunc is invoked with each batch the Runner pulls from the group;
// the caller is responsible for actually confirming and reloading.
type PollFunc func(batch []*Entry)

// Runner drives a Group on a fixed tick, pulling and dispatching
// batches until stopped.
type Runner struct {
	group     *Group
	interval  time.Duration
	batchSize int
	poll      PollFunc
	accel     *Accelerator
	logger    zerolog.Logger
	stopCh    chan struct{}
}

// NewRunner returns a Runner over group, ticking every interval and
// pulling up to batchSize entries per cycle. accel may be nil.
func NewRunner(group *Group, interval time.Duration, batchSize int, poll PollFunc, accel *Accelerator) *Runner {
	return &Runner{
		group:     group,
		interval:  interval,
		batchSize: batchSize,
		poll:      poll,
		accel:     accel,
		logger:    elog.WithComponent("polling.runner"),
		stopCh:    make(chan struct{}),
	}
}

// Start begins the tick loop in a goroutine.
func (r *Runner) Start() {
	go r.run()
}

// Stop halts the loop.
func (r *Runner) Stop() {
	close(r.stopCh)
}

func (r *Runner) run() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info().Msg("polling runner started")

	var accelCh <-chan struct{}
	if r.accel != nil {
		accelCh = r.accel.Signal()
	}

	for {
		select {
		case <-ticker.C:
			r.cycle()
		case <-accelCh:
			r.cycle()
		case <-r.stopCh:
			r.logger.Info().Msg("polling runner stopped")
			return
		}
	}
}

func (r *Runner) cycle() {
	batch := r.group.GetNextBatch(r.batchSize)
	if len(batch) == 0 {
		return
	}
	r.poll(batch)
}
