package observability

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/mattn/go-isatty"

	"github.com/kysync/kysync/internal/logging"
)

const pollInterval = 100 * time.Millisecond

// phaseSnapshot records how much progress was made, and how long it took, in
// one completed phase.
type phaseSnapshot struct {
	bytes int64
	ms    int64
}

// Observer runs a command on its own goroutine, polling the attached
// Observable every 100ms (drawing an in-place progress line when the output
// is a terminal), logs the progress line at each phase transition, and logs a
// final per-phase summary once the command returns.
type Observer struct {
	observable *Observable
	logger     *logging.Logger
	runID      string

	tty bool

	totalBegin time.Time
	phaseBegin time.Time
	phases     []phaseSnapshot
}

// NewObserver creates an Observer for the given observable, logging through
// logger. out is used only to decide whether in-place (carriage-return
// driven) progress rendering is appropriate; it is not written to directly.
func NewObserver(observable *Observable, logger *logging.Logger, out interface {
	Fd() uintptr
}) *Observer {
	tty := out != nil && isatty.IsTerminal(out.Fd())
	return &Observer{
		observable: observable,
		logger:     logger,
		runID:      uuid.NewString()[:8],
		tty:        tty,
	}
}

// Run executes task on its own goroutine, polling and rendering progress
// every 100ms until it returns, then logs a summary of every completed
// phase. It returns task's own return value.
func (o *Observer) Run(task func() (int, error)) (int, error) {
	o.observable.enableMonitor()

	o.totalBegin = time.Now()
	o.phaseBegin = o.totalBegin

	type result struct {
		code int
		err  error
	}
	done := make(chan result, 1)
	go func() {
		code, err := task()
		done <- result{code, err}
	}()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var res result
loop:
	for {
		select {
		case res = <-done:
			break loop
		case <-ticker.C:
			o.update()
		}
	}

	o.snapshotPhases(func(key string, value int64) {
		o.logger.Printf("%s=%d", key, value)
	})

	return res.code, res.err
}

// update renders the current progress line and, if the observable has
// signaled that it is ready to advance to its next phase, snapshots the
// completed phase and performs the transition.
func (o *Observer) update() {
	now := time.Now()

	total := o.observable.Total()
	progress := o.observable.Progress()

	totalMs := now.Sub(o.totalBegin).Milliseconds()
	phaseMs := now.Sub(o.phaseBegin).Milliseconds()

	var percent int64
	if total != 0 {
		percent = 100 * progress / total
	}

	var rate float64
	if phaseMs != 0 {
		rate = float64(progress) / (float64(phaseMs) / 1000)
	}

	line := fmt.Sprintf(
		"[%s] phase %d | %9s | %5.1fs | %9s/s | %3d%% | %5.1fs total",
		o.runID,
		o.observable.Phase(),
		humanize.Bytes(uint64(progress)),
		float64(phaseMs)/1e3,
		humanize.Bytes(uint64(rate)),
		percent,
		float64(totalMs)/1e3,
	)

	if o.tty {
		fmt.Print(line + "\t\r")
	}

	if o.observable.IsReadyForNextPhase() {
		o.logger.Println(line)

		o.phases = append(o.phases, phaseSnapshot{
			bytes: progress,
			ms:    now.Sub(o.phaseBegin).Milliseconds(),
		})

		o.observable.advancePhase()
		o.phaseBegin = now
	}
}

// snapshotPhases invokes callback twice (once for bytes, once for
// milliseconds) for each completed phase, in phase order.
func (o *Observer) snapshotPhases(callback func(key string, value int64)) {
	for i, phase := range o.phases {
		prefix := fmt.Sprintf("//%s/phase_%d", o.observable.Name(), i)
		callback(prefix+"_bytes", phase.bytes)
		callback(prefix+"_ms", phase.ms)
	}
}
