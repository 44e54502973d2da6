package queue

import "errors"

var (
	ErrRepositoryNil          = errors.New("queue: repository cannot be nil")
	ErrPayloadNil             = errors.New("queue: payload cannot be nil")
	ErrInvalidPriority        = errors.New("queue: priority must be between 0 and 100")
	ErrHandlerNotFound        = errors.New("queue: no handler registered for task")
	ErrNoHandlers             = errors.New("queue: no task handlers registered")
	ErrInvalidSchedule        = errors.New("queue: invalid schedule")
	ErrTaskAlreadyRegistered  = errors.New("queue: task already registered")
	ErrSchedulerNotConfigured = errors.New("queue: scheduler has no registered tasks")
	ErrWorkerStarted          = errors.New("queue: worker already started")
	ErrWorkerNotStarted       = errors.New("queue: worker not started")

	// ErrNoTaskToClaim is returned by ClaimTask when nothing is due. Workers treat it as idle.
	ErrNoTaskToClaim = errors.New("queue: no task to claim")
	ErrTaskNotFound  = errors.New("queue: task not found")
	// ErrTaskNotProcessing is returned when completing or failing a task this worker no longer holds.
	ErrTaskNotProcessing = errors.New("queue: task is not processing")
)
