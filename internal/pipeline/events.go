package pipeline

// Event is a notification published to UI shells. Each event carries a snapshot
// of the job's state at the time it was published, so subscribers never race
// the running job.
type Event interface {
	// Job this event relates to.
	Job() *Job
}

type jobEvent struct {
	job *Job
}

func (e jobEvent) Job() *Job {
	return e.job
}

// JobStarted is published once when a job leaves Queued.
type JobStarted struct {
	jobEvent
	State JobState
}

// JobUpdated is published on phase changes and (throttled) progress changes.
type JobUpdated struct {
	jobEvent
	State JobState
}

// JobFinished is published exactly once, when the job reaches a terminal phase.
type JobFinished struct {
	jobEvent
	State JobState
}
