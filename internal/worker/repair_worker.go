package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"slotcal/internal/database"
	"slotcal/internal/domain"
	"slotcal/internal/metrics"
	"slotcal/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	TaskDeleteEvent    = "delete_event"
	TaskCancelSchedule = "cancel_schedule"
	TaskMirrorUpsert   = "mirror_upsert"
	TaskMirrorStatus   = "mirror_status"
)

// repairPayload is persisted in RepairTask.Payload as JSON.
type repairPayload struct {
	EventID    string          `json:"event_id,omitempty"`
	ScheduleID int64           `json:"schedule_id,omitempty"`
	Booking    *models.Booking `json:"booking,omitempty"`
	Status     string          `json:"status,omitempty"`
}

// RepairWorker drains the repair queue: compensating deletes that failed
// inline, scheduler cancels owed after partial writes, and sheets mirror
// writes. Tasks persist in SQLite first, ride a Redis list for promptness,
// and fall back to DB polling. Exhausted tasks land in a dead-letter list.
type RepairWorker struct {
	db            *database.DB
	store         domain.RealtimeStore
	scheduler     domain.SchedulerClient
	sheets        domain.SheetsWriter
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan models.RepairTask
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	logger        zerolog.Logger
}

// NewRepairWorker builds a worker with sane defaults. sheets and redisClient
// may be nil; mirror tasks then complete as no-ops and queueing degrades to
// DB polling.
func NewRepairWorker(db *database.DB, store domain.RealtimeStore, scheduler domain.SchedulerClient, sheets domain.SheetsWriter, redisClient *redis.Client, retry RetryPolicy, logger *zerolog.Logger) *RepairWorker {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = 1 * time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}
	base := zerolog.Nop()
	if logger != nil {
		base = logger.With().Str("component", "repair-worker").Logger()
	}

	return &RepairWorker{
		db:            db,
		store:         store,
		scheduler:     scheduler,
		sheets:        sheets,
		redis:         redisClient,
		retryPolicy:   retry,
		queue:         make(chan models.RepairTask, models.RepairQueueSize),
		redisQueueKey: "repair:queue",
		deadLetterKey: "repair:deadletter",
		pollInterval:  2 * time.Second,
		batchSize:     20,
		logger:        base,
	}
}

func (w *RepairWorker) EnqueueDeleteEvent(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	return w.enqueue(ctx, TaskDeleteEvent, repairPayload{EventID: eventID})
}

func (w *RepairWorker) EnqueueCancelSchedule(ctx context.Context, scheduleID int64) error {
	if scheduleID == 0 {
		return errors.New("schedule id is required")
	}
	return w.enqueue(ctx, TaskCancelSchedule, repairPayload{ScheduleID: scheduleID})
}

func (w *RepairWorker) EnqueueMirrorUpsert(ctx context.Context, booking *models.Booking) error {
	if booking == nil || booking.ID == "" {
		return errors.New("booking is required")
	}
	return w.enqueue(ctx, TaskMirrorUpsert, repairPayload{EventID: booking.ID, Booking: booking})
}

func (w *RepairWorker) EnqueueMirrorStatus(ctx context.Context, bookingID, status string) error {
	if bookingID == "" || status == "" {
		return errors.New("booking id and status are required")
	}
	return w.enqueue(ctx, TaskMirrorStatus, repairPayload{EventID: bookingID, Status: status})
}

// enqueue persists the task, then schedules it via redis or the in-memory
// queue.
func (w *RepairWorker) enqueue(ctx context.Context, taskType string, payload repairPayload) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	task := models.RepairTask{
		TaskType:  taskType,
		Payload:   string(payloadBytes),
		Status:    models.TaskPending,
		CreatedAt: time.Now(),
	}
	if err := w.db.CreateRepairTask(ctx, &task); err != nil {
		return fmt.Errorf("persist repair task: %w", err)
	}
	metrics.IncRepairTask(taskType)

	if w.redis != nil {
		if err := w.pushRedis(ctx, task); err != nil {
			w.logger.Warn().Err(err).Msg("redis push failed, fallback to memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- task:
	default:
		w.logger.Warn().Int64("task_id", task.ID).Msg("in-memory queue full, task left to polling")
	}

	return nil
}

// Start launches the main loop; stops when ctx is done.
func (w *RepairWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("repair worker started")
	defer w.logger.Info().Msg("repair worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if t, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, &t)
			continue
		}

		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, &t)
			continue
		}

		tasks, err := w.db.GetPendingRepairTasks(ctx, w.batchSize)
		if err != nil {
			w.logger.Error().Err(err).Msg("fetch pending tasks")
			sleep(ctx, w.pollInterval)
			continue
		}
		if len(tasks) == 0 {
			sleep(ctx, w.pollInterval)
			continue
		}

		for i := range tasks {
			w.processTask(ctx, &tasks[i])
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (w *RepairWorker) tryLocalQueue() (models.RepairTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return models.RepairTask{}, false
	}
}

func (w *RepairWorker) tryRedis(ctx context.Context) (models.RepairTask, bool) {
	if w.redis == nil {
		return models.RepairTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, redis.Nil) {
			return models.RepairTask{}, false
		}
		w.logger.Warn().Err(err).Msg("redis BRPOP error")
		return models.RepairTask{}, false
	}
	if len(res) != 2 {
		return models.RepairTask{}, false
	}
	var task models.RepairTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Warn().Err(err).Msg("decode redis task")
		return models.RepairTask{}, false
	}
	return task, true
}

func (w *RepairWorker) processTask(ctx context.Context, task *models.RepairTask) {
	var payload repairPayload
	if err := json.Unmarshal([]byte(task.Payload), &payload); err != nil {
		w.failTask(ctx, task, fmt.Errorf("decode payload: %w", err))
		return
	}

	if err := w.handleTask(ctx, task.TaskType, payload); err != nil {
		w.retryOrFail(ctx, task, err)
		return
	}

	if err := w.db.UpdateRepairTaskStatus(ctx, task.ID, models.TaskCompleted, "", nil); err != nil {
		w.logger.Warn().Err(err).Int64("task_id", task.ID).Msg("mark completed")
	}
}

func (w *RepairWorker) handleTask(ctx context.Context, taskType string, payload repairPayload) error {
	switch taskType {
	case TaskDeleteEvent:
		if payload.EventID == "" {
			return errors.New("event id missing")
		}
		return w.store.DeleteEvent(ctx, payload.EventID)
	case TaskCancelSchedule:
		if payload.ScheduleID == 0 {
			return errors.New("schedule id missing")
		}
		return w.scheduler.CancelSchedule(ctx, payload.ScheduleID)
	case TaskMirrorUpsert:
		if w.sheets == nil {
			return nil
		}
		if payload.Booking == nil {
			return errors.New("booking payload missing")
		}
		return w.sheets.UpsertBooking(ctx, payload.Booking)
	case TaskMirrorStatus:
		if w.sheets == nil {
			return nil
		}
		if payload.EventID == "" || payload.Status == "" {
			return errors.New("booking id or status missing")
		}
		return w.sheets.UpdateBookingStatus(ctx, payload.EventID, payload.Status)
	default:
		return fmt.Errorf("unknown task type: %s", taskType)
	}
}

func (w *RepairWorker) retryOrFail(ctx context.Context, task *models.RepairTask, cause error) {
	attempt := task.RetryCount + 1
	if attempt >= w.retryPolicy.MaxRetries {
		if err := w.db.UpdateRepairTaskStatus(ctx, task.ID, models.TaskFailed, cause.Error(), nil); err != nil {
			w.logger.Warn().Err(err).Int64("task_id", task.ID).Msg("mark failed")
		}
		w.logger.Error().Str("task_type", task.TaskType).Int64("task_id", task.ID).
			Str("cause", cause.Error()).Msg("repair task exhausted retries")
		w.pushDeadLetter(ctx, task)
		return
	}

	nextDelay := w.retryPolicy.NextDelay(attempt)
	nextTime := time.Now().Add(nextDelay)
	if err := w.db.UpdateRepairTaskStatus(ctx, task.ID, models.TaskRetry, cause.Error(), &nextTime); err != nil {
		w.logger.Warn().Err(err).Int64("task_id", task.ID).Msg("mark retry")
	}
}

func (w *RepairWorker) failTask(ctx context.Context, task *models.RepairTask, err error) {
	if dbErr := w.db.UpdateRepairTaskStatus(ctx, task.ID, models.TaskFailed, err.Error(), nil); dbErr != nil {
		w.logger.Warn().Err(dbErr).Int64("task_id", task.ID).Msg("mark failed")
	}
	w.pushDeadLetter(ctx, task)
}

func (w *RepairWorker) pushRedis(ctx context.Context, task models.RepairTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, w.redisQueueKey, data).Err()
}

func (w *RepairWorker) pushDeadLetter(ctx context.Context, task *models.RepairTask) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(task)
	if err != nil {
		w.logger.Warn().Err(err).Int64("task_id", task.ID).Msg("encode deadletter")
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Warn().Err(err).Int64("task_id", task.ID).Msg("deadletter push")
	}
}
