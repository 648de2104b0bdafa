package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gosuri/uilive"
)

const barWidth = 40

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Options configures the progress reporter.
type Options struct {
	// TotalSize is the expected number of bytes for the whole run.
	// It can be changed later with SetTotal.
	TotalSize int64

	// Output is where progress and completion lines are written.
	// Default: os.Stdout
	Output io.Writer

	// UpdateInterval is how often the live line is redrawn.
	// Default: 100ms
	UpdateInterval time.Duration

	// Live enables the redrawn progress line. Completion lines are printed
	// either way.
	Live bool
}

// Reporter is the aggregate byte counter shared by every transfer of a run.
// All state sits behind one mutex; readers take the same lock as writers.
type Reporter struct {
	opts Options

	mu         sync.Mutex
	total      int64
	completed  int64
	items      []string
	startTime  time.Time
	lastUpdate time.Time
	lastBytes  int64
	speed      float64
	frame      int
	started    bool
	stopped    bool

	live   *uilive.Writer
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewReporter creates a new progress reporter.
func NewReporter(opts Options) *Reporter {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.UpdateInterval == 0 {
		opts.UpdateInterval = 100 * time.Millisecond
	}

	return &Reporter{
		opts:   opts,
		total:  opts.TotalSize,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// SetTotal sets the expected number of bytes.
func (r *Reporter) SetTotal(total int64) {
	r.mu.Lock()
	r.total = total
	r.mu.Unlock()
}

// Start begins redrawing the live line. Without Options.Live it only
// records the start time.
func (r *Reporter) Start() {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.startTime = time.Now()
	r.lastUpdate = r.startTime
	if r.opts.Live {
		r.live = uilive.New()
		r.live.Out = r.opts.Output
	}
	r.mu.Unlock()

	if r.live == nil {
		close(r.doneCh)
		return
	}
	go r.updateLoop()
}

// Add records n more completed bytes. Non-positive increments are ignored,
// so the counter never goes backwards.
func (r *Reporter) Add(n int64) {
	if n <= 0 {
		return
	}
	r.mu.Lock()
	r.completed += n
	r.mu.Unlock()
}

// Completed returns the number of bytes completed so far.
func (r *Reporter) Completed() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completed
}

// Total returns the expected number of bytes.
func (r *Reporter) Total() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}

// Percent returns completion against the expected total. An empty run is
// 100% complete. The value may exceed 100 when sizes were underestimated.
func (r *Reporter) Percent() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.total <= 0 {
		return 100
	}
	return float64(r.completed) / float64(r.total) * 100
}

// Println records a completion line and prints it above the live line.
// Lines arriving after Stop or Finish are recorded but not printed.
func (r *Reporter) Println(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items = append(r.items, line)
	if r.stopped {
		return
	}
	if r.live != nil {
		fmt.Fprintln(r.live.Bypass(), line)
		return
	}
	fmt.Fprintln(r.opts.Output, line)
}

// Log returns the completion lines recorded so far.
func (r *Reporter) Log() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.items))
	copy(out, r.items)
	return out
}

// Finish stops the live line and clears it from the output.
func (r *Reporter) Finish() {
	r.stop()
}

// Stop abandons the live line, for runs that end in failure. The line is
// cleared so the caller's error message starts on a clean row.
func (r *Reporter) Stop() {
	r.stop()
}

func (r *Reporter) stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	started := r.started
	r.mu.Unlock()

	if !started {
		return
	}
	close(r.stopCh)
	<-r.doneCh

	if r.live != nil {
		// A bypass write erases the lines drawn so far.
		_, _ = r.live.Bypass().Write(nil)
	}
}

// updateLoop periodically redraws the live line.
func (r *Reporter) updateLoop() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.opts.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			line := r.render(time.Now())
			fmt.Fprintln(r.live, line)
			_ = r.live.Flush()
		}
	}
}

// render builds the live line: spinner, speed, bar, bytes.
func (r *Reporter) render(now time.Time) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	elapsed := now.Sub(r.lastUpdate).Seconds()
	if elapsed >= 0.1 {
		r.speed = float64(r.completed-r.lastBytes) / elapsed
		r.lastUpdate = now
		r.lastBytes = r.completed
	}
	r.frame = (r.frame + 1) % len(spinnerFrames)

	return fmt.Sprintf("%s %s/s [%s] %s/%s",
		spinnerFrames[r.frame],
		formatBytes(int64(r.speed)),
		formatBar(r.completed, r.total, barWidth),
		formatBytes(r.completed),
		formatBytes(r.total),
	)
}

// formatBar draws a bar of width cells using "#>-".
func formatBar(completed, total int64, width int) string {
	if width <= 0 {
		return ""
	}
	filled := width
	if total > 0 && completed < total {
		filled = int(float64(completed) / float64(total) * float64(width))
	}
	if filled >= width {
		return strings.Repeat("#", width)
	}
	return strings.Repeat("#", filled) + ">" + strings.Repeat("-", width-filled-1)
}
