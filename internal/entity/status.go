package entity

type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskInFlight  TaskStatus = "inflight"
	TaskRetrying  TaskStatus = "retrying"
	TaskSucceeded TaskStatus = "succeeded"
	TaskFailed    TaskStatus = "failed"
)

// Terminal - задача в этом статусе больше не обрабатывается.
func (s TaskStatus) Terminal() bool {
	return s == TaskSucceeded || s == TaskFailed
}
