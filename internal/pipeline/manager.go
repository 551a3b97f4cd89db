// Package pipeline coordinates one download/convert job from URL input to a
// verified output file, owning progress reporting, cancellation and history
// persistence.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	yt2convert "github.com/hossez/yt2convert"
	"github.com/hossez/yt2convert/internal/pubsub"
	"github.com/hossez/yt2convert/internal/store"
)

var ErrManagerClosed = errors.New("pipeline manager closed")

type Config struct {
	Fetcher   yt2convert.Fetcher
	Converter yt2convert.Converter
	// Tagger may be nil; audio outputs are then left untagged.
	Tagger yt2convert.Tagger
	// Settings and History may be nil (no persistence).
	Settings *store.SettingsStore
	History  *store.HistoryStore
	// JobTimeout bounds one whole job across both phases; zero means no bound.
	JobTimeout time.Duration
	// ProgressUpdateInterval is the minimum interval between JobUpdated events
	// produced by progress callbacks within a phase.
	ProgressUpdateInterval time.Duration
	// KeepRawArtifacts leaves each job's scratch directory in place.
	KeepRawArtifacts bool
}

const DefaultProgressUpdateInterval = 250 * time.Millisecond

// Manager owns the set of running jobs. Each submitted descriptor gets its own
// pipeline instance on its own goroutine; the manager does not queue or dedupe,
// that is the UI shell's concern.
type Manager struct {
	config    Config
	ctx       context.Context
	ctxCancel context.CancelFunc
	log       *zap.SugaredLogger

	mu     sync.RWMutex
	jobs   map[JobID]*Job
	closed bool

	events *pubsub.Publisher[Event]
}

func NewManager(ctx context.Context, config Config) (*Manager, error) {
	if config.Fetcher == nil || config.Converter == nil {
		return nil, errors.New("pipeline requires a fetcher and a converter")
	}
	if config.ProgressUpdateInterval == 0 {
		config.ProgressUpdateInterval = DefaultProgressUpdateInterval
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Manager{
		config:    config,
		ctx:       ctx,
		ctxCancel: cancel,
		log:       zap.S().Named("pipeline"),
		jobs:      make(map[JobID]*Job),
		events:    pubsub.NewPublisher[Event](),
	}, nil
}

// Submit validates the descriptor and, if it is acceptable, starts a job for
// it immediately. An invalid descriptor is rejected here, before any
// subprocess spawns and without a history entry, with an error wrapping
// ErrInvalidInput.
func (m *Manager) Submit(desc yt2convert.JobDescriptor) (*Job, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}
	j := newJob(m, desc)
	m.jobs[j.state.ID] = j
	m.mu.Unlock()

	m.log.Infow("job submitted", "job_id", j.state.ID, "url", desc.URL, "format", desc.Format)
	go j.run()
	return j, nil
}

// Get returns the job with the given ID, or nil.
func (m *Manager) Get(id JobID) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// Jobs returns all jobs the manager knows about.
func (m *Manager) Jobs() []*Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	jobs := make([]*Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		jobs = append(jobs, j)
	}
	return jobs
}

// Cancel requests cancellation of the job with the given ID.
func (m *Manager) Cancel(id JobID) error {
	j := m.Get(id)
	if j == nil {
		return errors.New("unknown job")
	}
	j.Cancel()
	return nil
}

// Subscribe returns a subscription for job events, or nil after Close.
func (m *Manager) Subscribe() *pubsub.Subscription[Event] {
	return m.events.Subscribe()
}

// Close cancels all running jobs, waits for them to report their terminal
// states, and shuts down the event publisher.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	jobs := make([]*Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		jobs = append(jobs, j)
	}
	m.mu.Unlock()

	m.ctxCancel()
	for _, j := range jobs {
		<-j.Done()
	}
	m.events.Close()
}
