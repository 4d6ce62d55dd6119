package models

import "time"

// Repair task states.
const (
	TaskPending   = "pending"
	TaskRetry     = "retry"
	TaskCompleted = "completed"
	TaskFailed    = "failed"
)

// RepairTask is a persisted compensating action: a store delete, a scheduler
// cancel, or a sheets mirror write that must eventually run.
type RepairTask struct {
	ID          int64      `json:"id"`
	TaskType    string     `json:"task_type"`
	Payload     string     `json:"payload"`
	Status      string     `json:"status"`
	RetryCount  int        `json:"retry_count"`
	LastError   *string    `json:"last_error"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at"`
	NextRetryAt *time.Time `json:"next_retry_at"`
}

// JournalEntry is one row of the append-only booking ledger.
type JournalEntry struct {
	Seq        int64     `json:"seq"`
	BookingID  string    `json:"booking_id"`
	CourseName string    `json:"course_name"`
	Slot       string    `json:"slot"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	CreatedBy  string    `json:"created_by"`
	Department string    `json:"department"`
	Status     string    `json:"status"`
	RecordedAt time.Time `json:"recorded_at"`
}
