package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	yt2convert "github.com/hossez/yt2convert"
	"github.com/hossez/yt2convert/internal/store"
	"github.com/hossez/yt2convert/internal/syncutil"
)

type JobID string

func newJobID() JobID {
	return JobID(uuid.NewString())
}

// Phase names a stage in a job's lifecycle.
type Phase string

const (
	PhaseQueued      Phase = "queued"
	PhaseDownloading Phase = "downloading"
	PhaseConverting  Phase = "converting"
	PhaseTagging     Phase = "tagging"
	PhaseCompleted   Phase = "completed"
	PhaseFailed      Phase = "failed"
	PhaseCancelled   Phase = "cancelled"
)

// IsTerminal reports whether no further transitions can happen.
func (p Phase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseFailed || p == PhaseCancelled
}

// JobState is the mutable record tracked per running job. Methods on Job return
// copies; only the job's own goroutine mutates it.
type JobState struct {
	ID         JobID
	Descriptor yt2convert.JobDescriptor
	Phase      Phase
	// Progress is the percent within the current phase, 0-100, non-decreasing
	// until the phase changes.
	Progress    float64
	ErrorDetail string
	// Warning records a non-fatal problem (tagging failure) on an otherwise
	// completed job, structurally separate from ErrorDetail.
	Warning         string
	Title           string
	RawArtifactPath string
	OutputPath      string
}

// A Job is one running pipeline instance for one descriptor.
type Job struct {
	manager   *Manager
	ctx       context.Context
	ctxCancel context.CancelFunc
	log       *zap.SugaredLogger

	mu        sync.RWMutex
	state     JobState
	cancelled bool // explicit cancel request, to distinguish from timeout
	lastEvent time.Time

	done *syncutil.Event
}

func newJob(m *Manager, desc yt2convert.JobDescriptor) *Job {
	ctx, cancel := context.WithCancel(m.ctx)
	id := newJobID()
	return &Job{
		manager:   m,
		ctx:       ctx,
		ctxCancel: cancel,
		log:       zap.S().Named("job").With("job_id", id),
		state: JobState{
			ID:         id,
			Descriptor: desc,
			Phase:      PhaseQueued,
		},
		done: syncutil.NewEvent(),
	}
}

// ID returns the job's identifier.
func (j *Job) ID() JobID {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.state.ID
}

// State returns a snapshot of the job's current state.
func (j *Job) State() JobState {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.state
}

// Cancel requests cooperative cancellation. The in-flight external process is
// terminated and partial files removed before the job reports Cancelled.
// Calling Cancel on a terminal job is a no-op.
func (j *Job) Cancel() {
	j.mu.Lock()
	if !j.state.Phase.IsTerminal() {
		j.cancelled = true
	}
	j.mu.Unlock()
	j.ctxCancel()
}

// Done returns a channel closed once the job has reported its terminal state.
func (j *Job) Done() <-chan struct{} {
	return j.done.Wait()
}

// run drives the job through its phases. It is the only goroutine that mutates
// the job's state.
func (j *Job) run() {
	defer j.finish()

	ctx := j.ctx
	if timeout := j.manager.config.JobTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	j.setPhase(PhaseDownloading)
	raw, err := j.manager.config.Fetcher.Fetch(ctx, j.state.Descriptor, j.reportProgress)
	if err != nil {
		j.fail(ctx, err)
		return
	}
	j.update(func(s *JobState) {
		s.RawArtifactPath = raw.Path
		s.Title = raw.Title
	})
	defer j.cleanupScratch(raw)

	j.setPhase(PhaseConverting)
	out, err := j.manager.config.Converter.Convert(ctx, raw, j.state.Descriptor, j.reportProgress)
	if err != nil {
		j.fail(ctx, err)
		return
	}
	j.update(func(s *JobState) {
		s.OutputPath = out.Path
	})

	if j.state.Descriptor.Format.NeedsTagging() && j.manager.config.Tagger != nil {
		j.setPhase(PhaseTagging)
		if err := j.manager.config.Tagger.Tag(out.Path, raw); err != nil {
			// Best-effort: record as a warning, the job still completes.
			j.log.Warnw("tagging failed", "error", err)
			j.update(func(s *JobState) {
				s.Warning = fmt.Sprintf("tagging failed: %v", err)
			})
		}
	}

	j.setPhase(PhaseCompleted)
}

// fail moves the job to its terminal failure state, mapping cancellation and
// timeout onto their own phases.
func (j *Job) fail(ctx context.Context, err error) {
	j.mu.Lock()
	cancelled := j.cancelled
	j.mu.Unlock()

	switch {
	case cancelled || errors.Is(err, context.Canceled):
		j.setPhase(PhaseCancelled)
	case errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded:
		j.update(func(s *JobState) {
			s.ErrorDetail = fmt.Sprintf("%v after %s", yt2convert.ErrTimeout, j.manager.config.JobTimeout)
		})
		j.setPhase(PhaseFailed)
	default:
		j.update(func(s *JobState) {
			s.ErrorDetail = err.Error()
		})
		j.setPhase(PhaseFailed)
	}
}

// finish publishes the terminal event exactly once and performs the terminal
// side effects: history append (skipped for Cancelled) and last-used settings
// update (success only). Persistence failures are warnings, never job failures.
func (j *Job) finish() {
	state := j.State()
	if !state.Phase.IsTerminal() {
		// The worker exited without reaching a terminal phase; treat it as
		// cancelled via manager shutdown.
		j.setPhase(PhaseCancelled)
		state = j.State()
	}

	if state.Phase != PhaseCancelled {
		j.appendHistory(state)
	}
	if state.Phase == PhaseCompleted {
		j.rememberLastUsed(state)
	}

	j.manager.events.Send(JobFinished{jobEvent{j}, state})
	j.done.Set()
	j.log.Infow("job finished", "phase", state.Phase, "output", state.OutputPath, "error", state.ErrorDetail)
}

func (j *Job) appendHistory(state JobState) {
	history := j.manager.config.History
	if history == nil {
		return
	}
	entry := store.HistoryEntry{
		URL:       state.Descriptor.URL,
		Title:     state.Title,
		Format:    state.Descriptor.Format.String(),
		Quality:   state.Descriptor.Quality,
		Timestamp: time.Now().UTC(),
		Status:    store.StatusFailed,
	}
	if state.Phase == PhaseCompleted {
		entry.Status = store.StatusSuccess
		entry.OutputPath = state.OutputPath
	}
	if err := history.Append(entry); err != nil {
		j.log.Warnw("could not append history entry", "error", err)
	}
}

func (j *Job) rememberLastUsed(state JobState) {
	settings := j.manager.config.Settings
	if settings == nil {
		return
	}
	err := settings.Update(func(s *store.Settings) {
		s.OutputDir = state.Descriptor.DestDir
		s.DefaultFormat = state.Descriptor.Format
		s.DefaultQuality = state.Descriptor.Quality
		if state.Descriptor.Format == yt2convert.FormatMP4 {
			s.DefaultCodec = state.Descriptor.Codec
		}
	})
	if err != nil {
		j.log.Warnw("could not save last-used settings", "error", err)
	}
}

func (j *Job) cleanupScratch(raw *yt2convert.RawArtifact) {
	if raw.ScratchDir == "" || j.manager.config.KeepRawArtifacts {
		return
	}
	if err := os.RemoveAll(raw.ScratchDir); err != nil {
		j.log.Warnw("could not remove scratch dir", "path", raw.ScratchDir, "error", err)
	}
}

// setPhase enters a new phase, resetting progress to 0, and publishes an event.
func (j *Job) setPhase(phase Phase) {
	j.mu.Lock()
	if j.state.Phase.IsTerminal() {
		j.mu.Unlock()
		return
	}
	started := j.state.Phase == PhaseQueued
	j.state.Phase = phase
	j.state.Progress = 0
	state := j.state
	j.mu.Unlock()

	if started {
		j.manager.events.Send(JobStarted{jobEvent{j}, state})
	}
	if !phase.IsTerminal() && !started {
		j.manager.events.Send(JobUpdated{jobEvent{j}, state})
	}
	j.log.Debugw("phase change", "phase", phase)
}

// update applies a mutation to the state under the lock, without publishing.
func (j *Job) update(f func(*JobState)) {
	j.mu.Lock()
	f(&j.state)
	j.mu.Unlock()
}

// reportProgress receives adapter progress callbacks. Within a phase the
// visible percentage never decreases; event publication is throttled to the
// manager's configured interval, except that 100% is always published.
func (j *Job) reportProgress(pct float64) {
	if pct < 0 {
		pct = 0
	} else if pct > 100 {
		pct = 100
	}

	j.mu.Lock()
	if j.state.Phase.IsTerminal() {
		j.mu.Unlock()
		return
	}
	if pct < j.state.Progress {
		pct = j.state.Progress
	}
	j.state.Progress = pct
	now := time.Now()
	throttled := pct < 100 && now.Sub(j.lastEvent) < j.manager.config.ProgressUpdateInterval
	if !throttled {
		j.lastEvent = now
	}
	state := j.state
	j.mu.Unlock()

	if !throttled {
		j.manager.events.Send(JobUpdated{jobEvent{j}, state})
	}
}
