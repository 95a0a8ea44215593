package task

import "time"

// EventType discriminates the variants of Event.
type EventType string

const (
	EventProgress EventType = "progress"
	EventResult   EventType = "result"
	EventError    EventType = "error"
)

// ProgressStatus is the phase reported by a progress event.
type ProgressStatus string

const (
	ProgressStarted   ProgressStatus = "started"
	ProgressCompleted ProgressStatus = "completed"
	ProgressFailed    ProgressStatus = "failed"
)

// Event is a task stream event. Type selects which fields are meaningful:
// progress uses AgentName/Status/Message, result uses Result, error uses Error.
type Event struct {
	Type      EventType      `json:"type"`
	TaskID    string         `json:"taskId"`
	AgentName string         `json:"agentName,omitempty"`
	Status    ProgressStatus `json:"status,omitempty"`
	Message   string         `json:"message,omitempty"`
	Result    *Result        `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// IsTerminal reports whether e ends its task's stream.
func (e Event) IsTerminal() bool {
	return e.Type == EventResult || e.Type == EventError
}

// NewProgressEvent builds a progress event stamped with the current time.
func NewProgressEvent(taskID, agentName string, status ProgressStatus, message string) Event {
	return Event{
		Type:      EventProgress,
		TaskID:    taskID,
		AgentName: agentName,
		Status:    status,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

// NewResultEvent builds the terminal success event.
func NewResultEvent(taskID string, result Result) Event {
	return Event{
		Type:      EventResult,
		TaskID:    taskID,
		Result:    &result,
		Timestamp: time.Now().UTC(),
	}
}

// NewErrorEvent builds the terminal failure event.
func NewErrorEvent(taskID, message string) Event {
	return Event{
		Type:      EventError,
		TaskID:    taskID,
		Error:     message,
		Timestamp: time.Now().UTC(),
	}
}

// TerminalEvent reconstructs the terminal event of a finished task from its
// state. It returns false while the task is still pending or running.
func TerminalEvent(s State) (Event, bool) {
	switch s.Status {
	case StatusCompleted:
		var result Result
		if s.Result != nil {
			result = *s.Result
		}
		ev := NewResultEvent(s.ID, result)
		ev.Timestamp = s.UpdatedAt
		return ev, true
	case StatusFailed:
		ev := NewErrorEvent(s.ID, s.Error)
		ev.Timestamp = s.UpdatedAt
		return ev, true
	default:
		return Event{}, false
	}
}
