package events

// Event type constants for kelindar/event.
const (
	TypeExecStarted uint32 = iota + 1
	TypeExecFinished
	TypeExecFailed
	TypeJobsReloaded
)

// Event is the interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// ExecStartedEvent is published when a partition's subprocess starts.
type ExecStartedEvent struct {
	Label     string `json:"label"`
	Partition int    `json:"partition"`
	PID       int    `json:"pid"`
}

// Type returns the event type identifier for ExecStartedEvent.
func (e ExecStartedEvent) Type() uint32 { return TypeExecStarted }

// ExecFinishedEvent is published when a partition execution finishes, whether
// cleanly or not.
type ExecFinishedEvent struct {
	Label     string `json:"label"`
	Partition int    `json:"partition"`
	ExitCode  int    `json:"exit_code"`
	Failed    bool   `json:"failed"`
}

// Type returns the event type identifier for ExecFinishedEvent.
func (e ExecFinishedEvent) Type() uint32 { return TypeExecFinished }

// ExecFailedEvent is published when a partition's subprocess cannot be
// started at all.
type ExecFailedEvent struct {
	Label     string `json:"label"`
	Partition int    `json:"partition"`
	Error     string `json:"error"`
}

// Type returns the event type identifier for ExecFailedEvent.
func (e ExecFailedEvent) Type() uint32 { return TypeExecFailed }

// JobsReloadedEvent is published when the job definitions file is reloaded.
type JobsReloadedEvent struct {
	Path string `json:"path"`
	Jobs int    `json:"jobs"`
}

// Type returns the event type identifier for JobsReloadedEvent.
func (e JobsReloadedEvent) Type() uint32 { return TypeJobsReloaded }
