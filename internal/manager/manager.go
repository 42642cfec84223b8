package manager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/psxtools/psupd/internal/job"
	"github.com/psxtools/psupd/internal/logger"
	"github.com/psxtools/psupd/internal/repository"
	protohttp "github.com/psxtools/psupd/pkg/protocol/http"
)

var (
	// ErrJobNotFound is returned when a job id is not in the registry.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobActive is returned when Remove is called on a job that has
	// not reached a terminal state.
	ErrJobActive = errors.New("job is still active")
)

// DownloadRequest describes one download to admit: where the package
// comes from, where it lands, and the title it belongs to. GameTitle and
// TitleID are bookkeeping only; they end up in the history record.
type DownloadRequest struct {
	URL       string
	Dest      string
	GameTitle string
	TitleID   string
	MultiPart bool
}

// tracked pairs a job with the title metadata it was admitted under.
type tracked struct {
	job       *job.Job
	gameTitle string
	titleID   string
}

// Manager owns the registry of download jobs. Its lifecycle is bound to
// the instance; there is no process-wide state.
type Manager struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*tracked

	client *protohttp.Client
	jobCfg job.Config
	repo   *repository.BoltRepository

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Manager. repo may be nil, in which case finished jobs
// are not recorded in the history store.
func New(client *protohttp.Client, jobCfg job.Config, repo *repository.BoltRepository) *Manager {
	if client == nil {
		client = protohttp.NewClient(nil)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		jobs:   make(map[uuid.UUID]*tracked),
		client: client,
		jobCfg: jobCfg,
		repo:   repo,
		ctx:    ctx,
		cancel: cancel,
	}
}

// StartDownload admits a new job and returns its id immediately; the
// transfer runs asynchronously. Probe results, mode fallback, and
// transfer failures are all observed through Progress.
func (m *Manager) StartDownload(req DownloadRequest) (uuid.UUID, error) {
	if req.URL == "" {
		return uuid.Nil, errors.New("url is empty")
	}

	if err := os.MkdirAll(filepath.Dir(req.Dest), 0o755); err != nil {
		return uuid.Nil, fmt.Errorf("failed to create download directory: %w", err)
	}

	mode := job.ModeDirect
	if req.MultiPart {
		mode = job.ModeMultiPart
	}

	j := job.New(m.ctx, req.URL, req.Dest, mode, m.jobCfg, m.client)

	t := &tracked{
		job:       j,
		gameTitle: req.GameTitle,
		titleID:   req.TitleID,
	}

	m.mu.Lock()
	m.jobs[j.ID] = t
	m.mu.Unlock()

	logger.Infof("Admitted job %s: %s -> %s (%s requested)", j.ID, req.URL, req.Dest, mode)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		j.Run()
		m.recordHistory(t)
	}()

	return j.ID, nil
}

// Progress returns a snapshot of the job's state. It is side-effect-free
// and safe to call repeatedly.
func (m *Manager) Progress(id uuid.UUID) (job.Progress, error) {
	j, err := m.get(id)
	if err != nil {
		return job.Progress{}, err
	}

	return j.Progress(), nil
}

// Cancel raises the job's cooperative cancellation signal. Already
// written bytes remain on disk.
func (m *Manager) Cancel(id uuid.UUID) error {
	j, err := m.get(id)
	if err != nil {
		return err
	}

	logger.Infof("Cancelling job %s", id)
	j.Cancel()

	return nil
}

// Remove discards bookkeeping for a terminal job: it leaves the
// registry and its history record is deleted. Unknown registry ids
// still get their history record cleared, so entries from earlier runs
// can be removed too. Removing a still-running job is rejected, never a
// silent cancel. The downloaded file is never deleted.
func (m *Manager) Remove(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.jobs[id]; ok {
		if !t.job.Status().Terminal() {
			return ErrJobActive
		}

		delete(m.jobs, id)
		logger.Debugf("Removed job %s from registry", id)
	}

	if m.repo != nil {
		if err := m.repo.Delete(id.String()); err != nil {
			return fmt.Errorf("failed to delete history record: %w", err)
		}
	}

	return nil
}

// History lists finished downloads from the history store, most recent
// first, for the front-end's downloads screen.
func (m *Manager) History() ([]*repository.Record, error) {
	if m.repo == nil {
		return nil, nil
	}

	return m.repo.FindAll()
}

// Wait blocks until every admitted job has reached a terminal state.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Shutdown cancels all running jobs and waits for them to stop, bounded
// by the given timeout.
func (m *Manager) Shutdown(timeout time.Duration) {
	logger.Infof("Shutting down download manager")

	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Infof("All jobs stopped")
	case <-time.After(timeout):
		logger.Warnf("Shutdown timed out, some jobs may not have stopped")
	}
}

func (m *Manager) get(id uuid.UUID) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}

	return t.job, nil
}

func (m *Manager) recordHistory(t *tracked) {
	if m.repo == nil {
		return
	}

	j := t.job
	p := j.Progress()
	record := &repository.Record{
		ID:         j.ID.String(),
		GameTitle:  t.gameTitle,
		TitleID:    t.titleID,
		URL:        j.URL,
		Filename:   p.Filename,
		Path:       j.Dest,
		TotalBytes: p.Total,
		Downloaded: p.Downloaded,
		Status:     j.Status().String(),
		Error:      p.Error,
		FinishedAt: time.Now(),
	}

	if err := m.repo.Save(record); err != nil {
		logger.Errorf("Failed to record job %s in history: %v", j.ID, err)
	}
}
