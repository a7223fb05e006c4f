package profile

import (
	"context"
	"errors"
	"sync"

	log "github.com/sirupsen/logrus"
)

// ErrWriterClosed is returned by Save once the writer has shut down.
var ErrWriterClosed = errors.New("profile writer closed")

// saveJob is one pending store write with its own result channel.
type saveJob struct {
	profile  *Profile
	resultCh chan error
}

// Writer serializes all SaveProfile calls through a single goroutine so
// that the daily-snapshot side effect and an enrollment commit can never
// race on the same identity record, even when callers run on multiple
// workers. Reads still go straight to the store.
type Writer struct {
	store    Store
	jobs     chan *saveJob
	shutdown chan struct{}
	once     sync.Once
}

// NewWriter starts the single writer goroutine over the given store.
func NewWriter(store Store) *Writer {
	w := &Writer{
		store:    store,
		jobs:     make(chan *saveJob, 16),
		shutdown: make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *Writer) run() {
	log.Debug("Profile writer started")
	for {
		select {
		case job, ok := <-w.jobs:
			if !ok {
				return
			}
			job.resultCh <- w.store.SaveProfile(job.profile)
		case <-w.shutdown:
			log.Debug("Profile writer shutting down")
			return
		}
	}
}

// Save persists a profile through the writer queue and waits for the
// result. The error contract is the store's: an error means nothing was
// written.
func (w *Writer) Save(ctx context.Context, p *Profile) error {
	job := &saveJob{
		profile:  p,
		resultCh: make(chan error, 1),
	}

	select {
	case <-w.shutdown:
		return ErrWriterClosed
	default:
	}

	select {
	case w.jobs <- job:
	case <-w.shutdown:
		return ErrWriterClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	// The enqueue can win a race against shutdown; the writer goroutine
	// may already be gone, so keep watching the shutdown channel.
	select {
	case err := <-job.resultCh:
		return err
	case <-w.shutdown:
		return ErrWriterClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the writer goroutine. Pending jobs are abandoned.
func (w *Writer) Close() {
	w.once.Do(func() {
		close(w.shutdown)
	})
}
