package job

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/psxtools/psupd/internal/logger"
	"github.com/psxtools/psupd/internal/utils"
	protohttp "github.com/psxtools/psupd/pkg/protocol/http"
)

// Mode selects how a job transfers its resource.
type Mode int32

const (
	ModeDirect Mode = iota
	ModeMultiPart
)

func (m Mode) String() string {
	if m == ModeMultiPart {
		return "multipart"
	}
	return "direct"
}

// Status is the job lifecycle state. Terminal states are never
// re-entered.
type Status int32

const (
	StatusCreated Status = iota
	StatusProbing
	StatusRunning
	StatusDone
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusProbing:
		return "probing"
	case StatusRunning:
		return "running"
	case StatusDone:
		return "done"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state is final.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed || s == StatusCancelled
}

// Progress is a point-in-time snapshot of a job, safe to hand to
// pollers.
type Progress struct {
	Filename   string  `json:"filename"`
	Total      int64   `json:"total"`
	Downloaded int64   `json:"downloaded"`
	Percent    float64 `json:"percent"`
	Speed      int64   `json:"speed_bytes_per_sec"`
	SpeedHuman string  `json:"speed_human"`
	Done       bool    `json:"done"`
	Error      string  `json:"error,omitempty"`
	Mode       Mode    `json:"-"`
	Parts      int     `json:"-"`
}

// Config carries the per-job transfer knobs.
type Config struct {
	Parts       int           // requested part count for MultiPart
	MaxRetries  int           // per-part transient retry budget
	RetryDelay  time.Duration // backoff base delay
	MinPartSize int64         // below Parts*MinPartSize, fall back to Direct
	ThrottleBps int64         // bandwidth cap in bytes/sec, 0 = unlimited
}

// DefaultConfig returns the transfer defaults.
func DefaultConfig() Config {
	return Config{
		Parts:       4,
		MaxRetries:  3,
		RetryDelay:  500 * time.Millisecond,
		MinPartSize: 1 << 20,
	}
}

// Job is one download operation: a source URL transferred into a
// destination file, in Direct or MultiPart mode.
type Job struct {
	ID            uuid.UUID
	URL           string
	Dest          string
	RequestedMode Mode

	client *protohttp.Client
	cfg    Config

	status     atomic.Int32
	mode       atomic.Int32
	partCount  atomic.Int32
	total      atomic.Int64
	downloaded atomic.Int64
	errValue   atomic.Value // error

	speed   *SpeedMeter
	limiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a job in state Created. Run must be called exactly once.
func New(ctx context.Context, url, dest string, mode Mode, cfg Config, client *protohttp.Client) *Job {
	if cfg.Parts <= 0 {
		cfg.Parts = DefaultConfig().Parts
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultConfig().RetryDelay
	}
	if cfg.MinPartSize <= 0 {
		cfg.MinPartSize = DefaultConfig().MinPartSize
	}

	jobCtx, cancel := context.WithCancel(ctx)

	j := &Job{
		ID:            uuid.New(),
		URL:           url,
		Dest:          dest,
		RequestedMode: mode,
		client:        client,
		cfg:           cfg,
		speed:         NewSpeedMeter(3 * time.Second),
		ctx:           jobCtx,
		cancel:        cancel,
		done:          make(chan struct{}),
	}

	if cfg.ThrottleBps > 0 {
		burst := int(cfg.ThrottleBps)
		if burst < 64<<10 {
			burst = 64 << 10
		}
		j.limiter = rate.NewLimiter(rate.Limit(cfg.ThrottleBps), burst)
	}

	j.mode.Store(int32(mode))

	return j
}

// Run executes the transfer to completion and records the terminal
// state. It blocks; callers normally invoke it on its own goroutine.
func (j *Job) Run() {
	defer close(j.done)
	defer j.cancel()

	err := j.run()

	switch {
	case err == nil:
		j.setStatus(StatusDone)
		logger.Infof("Job %s completed: %s", j.ID, j.Dest)
	case errors.Is(err, context.Canceled) || errors.Is(err, ErrCancelled):
		j.errValue.Store(ErrCancelled)
		j.setStatus(StatusCancelled)
		logger.Infof("Job %s cancelled", j.ID)
	default:
		j.errValue.Store(err)
		j.setStatus(StatusFailed)
		logger.Errorf("Job %s failed: %v", j.ID, err)
	}
}

// Cancel raises the cooperative cancellation signal shared by every
// active part of the job. The partially written file stays on disk.
func (j *Job) Cancel() {
	j.cancel()
}

// Done returns a channel closed when the job reaches a terminal state.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Status returns the current lifecycle state.
func (j *Job) Status() Status {
	return Status(j.status.Load())
}

// Mode returns the mode actually in use, which may differ from the
// requested one after a silent fallback.
func (j *Job) Mode() Mode {
	return Mode(j.mode.Load())
}

// Progress returns a snapshot of the job's state. It never blocks on
// network activity.
func (j *Job) Progress() Progress {
	total := j.total.Load()
	downloaded := j.downloaded.Load()

	var percent float64
	if total > 0 {
		percent = float64(downloaded) / float64(total) * 100
		if percent > 100 {
			percent = 100
		}
	}

	status := j.Status()

	var errStr string
	if v := j.errValue.Load(); v != nil {
		errStr = v.(error).Error()
	}

	speed := j.speed.Speed()

	return Progress{
		Filename:   filepath.Base(j.Dest),
		Total:      total,
		Downloaded: downloaded,
		Percent:    percent,
		Speed:      speed,
		SpeedHuman: utils.FormatSpeed(speed),
		Done:       status.Terminal(),
		Error:      errStr,
		Mode:       j.Mode(),
		Parts:      int(j.partCount.Load()),
	}
}

func (j *Job) setStatus(s Status) {
	j.status.Store(int32(s))
}

func (j *Job) run() error {
	j.setStatus(StatusProbing)

	info, probeErr := j.client.Probe(j.ctx, j.URL)
	if probeErr != nil && j.ctx.Err() != nil {
		return j.ctx.Err()
	}

	mode := j.RequestedMode
	if mode == ModeMultiPart {
		switch {
		case probeErr != nil:
			logger.Warnf("Job %s: probe failed (%v), falling back to direct mode", j.ID, probeErr)
			mode = ModeDirect
		case !info.SupportsRanges:
			logger.Debugf("Job %s: server does not support ranges, using direct mode", j.ID)
			mode = ModeDirect
		case info.Size <= 0:
			logger.Debugf("Job %s: total size unknown, using direct mode", j.ID)
			mode = ModeDirect
		case info.Size < int64(j.cfg.Parts)*j.cfg.MinPartSize:
			logger.Debugf("Job %s: %d bytes too small to split %d ways, using direct mode",
				j.ID, info.Size, j.cfg.Parts)
			mode = ModeDirect
		}
	}

	if probeErr == nil && info.Size > 0 {
		j.total.Store(info.Size)
	}

	j.mode.Store(int32(mode))
	j.setStatus(StatusRunning)

	logger.Infof("Job %s running in %s mode: %s -> %s", j.ID, mode, j.URL, j.Dest)

	if mode == ModeMultiPart {
		return j.runMultiPart(info.Size)
	}

	return j.runDirect()
}

// runDirect streams the resource with a single request, writing
// sequentially. Transient failures are retried only while no byte has
// been received, since a plain GET always restarts from zero.
func (j *Job) runDirect() error {
	var lastErr error

	for attempt := 0; attempt <= j.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			logger.Debugf("Job %s: direct attempt %d after %v", j.ID, attempt+1, lastErr)

			select {
			case <-j.ctx.Done():
				return j.ctx.Err()
			case <-time.After(calculateBackoff(attempt, j.cfg.RetryDelay)):
			}
		}

		err := j.fetchDirect()
		if err == nil {
			return nil
		}
		if j.ctx.Err() != nil {
			return j.ctx.Err()
		}
		if !isTransient(err) || j.downloaded.Load() > 0 {
			return err
		}

		lastErr = err
	}

	return fmt.Errorf("%w: %v", ErrRetriesExhausted, lastErr)
}

func (j *Job) fetchDirect() error {
	resp, err := j.client.Get(j.ctx, j.URL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.ContentLength > 0 {
		j.total.Store(resp.ContentLength)
	}

	f, err := os.OpenFile(j.Dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFileCreate, err)
	}
	defer f.Close()

	buf := make([]byte, 32<<10)
	for {
		select {
		case <-j.ctx.Done():
			return j.ctx.Err()
		default:
		}

		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if err := j.throttle(n); err != nil {
				return err
			}
			if _, werr := f.Write(buf[:n]); werr != nil {
				return fmt.Errorf("%w: %v", ErrFileWrite, werr)
			}
			j.addProgress(int64(n))
		}

		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}

// runMultiPart splits [0, total) into disjoint ranges and downloads them
// concurrently into one pre-sized file handle. The first part to fail
// irrecoverably cancels its siblings through the errgroup context.
func (j *Job) runMultiPart(total int64) error {
	parts := splitRanges(total, j.cfg.Parts)
	j.partCount.Store(int32(len(parts)))

	f, err := os.OpenFile(j.Dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFileCreate, err)
	}

	// Pre-size so every part can write at its own offset regardless of
	// completion order.
	if err := f.Truncate(total); err != nil {
		f.Close()
		logger.Warnf("Job %s: cannot pre-size destination (%v), falling back to direct mode", j.ID, err)
		j.mode.Store(int32(ModeDirect))
		j.partCount.Store(0)
		return j.runDirect()
	}
	defer f.Close()

	g, ctx := errgroup.WithContext(j.ctx)
	for i := range parts {
		p := &parts[i]
		g.Go(func() error {
			return j.runPart(ctx, f, p)
		})
	}

	return g.Wait()
}

// runPart downloads one byte range, retrying transient failures with
// backoff. A retry resumes the range at start+written, so already
// counted bytes are never transferred or counted twice.
func (j *Job) runPart(ctx context.Context, f *os.File, p *part) error {
	var lastErr error

	for attempt := 0; attempt <= j.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			logger.Debugf("Job %s part %d: attempt %d after %v", j.ID, p.index, attempt+1, lastErr)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(calculateBackoff(attempt, j.cfg.RetryDelay)):
			}
		}

		err := j.fetchRange(ctx, f, p)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !isTransient(err) {
			return err
		}

		lastErr = err
	}

	return fmt.Errorf("%w: part %d: %v", ErrRetriesExhausted, p.index, lastErr)
}

func (j *Job) fetchRange(ctx context.Context, f *os.File, p *part) error {
	offset := p.start + p.written
	if offset > p.end {
		return nil
	}

	resp, err := j.client.GetRange(ctx, j.URL, offset, p.end)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	buf := make([]byte, 32<<10)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if err := j.throttle(n); err != nil {
				return err
			}
			if _, werr := f.WriteAt(buf[:n], p.start+p.written); werr != nil {
				return fmt.Errorf("%w: %v", ErrFileWrite, werr)
			}
			p.written += int64(n)
			j.addProgress(int64(n))
		}

		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return rerr
		}
	}

	if p.written != p.size() {
		return fmt.Errorf("part %d: short read: got %d of %d bytes: %w",
			p.index, p.written, p.size(), io.ErrUnexpectedEOF)
	}

	return nil
}

func (j *Job) addProgress(n int64) {
	j.downloaded.Add(n)
	j.speed.Add(n)
}

func (j *Job) throttle(n int) error {
	if j.limiter == nil {
		return nil
	}
	return j.limiter.WaitN(j.ctx, n)
}

// part is one contiguous byte range of a MultiPart transfer. start and
// end are inclusive.
type part struct {
	index   int
	start   int64
	end     int64
	written int64
}

func (p *part) size() int64 {
	return p.end - p.start + 1
}

// splitRanges partitions [0, total) into at most n contiguous,
// non-overlapping ranges of near-equal size; the final range absorbs the
// remainder.
func splitRanges(total int64, n int) []part {
	if n <= 1 || total <= int64(n) {
		return []part{{index: 0, start: 0, end: total - 1}}
	}

	partSize := total / int64(n)
	parts := make([]part, 0, n)

	var start int64
	for i := 0; i < n; i++ {
		end := start + partSize - 1
		if i == n-1 {
			end = total - 1
		}
		parts = append(parts, part{index: i, start: start, end: end})
		start = end + 1
	}

	return parts
}

// isTransient classifies failures that are worth retrying: timeouts,
// resets, truncated bodies, and server-side (5xx) statuses.
func isTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var httpErr *protohttp.HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.Type {
		case protohttp.ErrorTypeNetwork, protohttp.ErrorTypeTimeout:
			return true
		case protohttp.ErrorTypeHTTP:
			return httpErr.Status >= 500 ||
				httpErr.Status == http.StatusTooManyRequests ||
				httpErr.Status == http.StatusRequestTimeout
		}
	}

	return false
}
