package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

type (
	// Handler processes tasks whose TaskName equals Name().
	Handler interface {
		Name() string
		Handle(ctx context.Context, payload json.RawMessage) error
	}

	TaskHandlerFunc[T any]  func(ctx context.Context, payload T) error
	PeriodicTaskHandlerFunc func(ctx context.Context) error
)

// NewTaskHandler binds a typed handler to the task name derived from T,
// the same name Enqueue derives from the payload value.
func NewTaskHandler[T any](handler TaskHandlerFunc[T]) Handler {
	var payload T
	return &payloadHandler[T]{name: TaskName(payload), handler: handler}
}

func NewPeriodicTaskHandler(name string, handler PeriodicTaskHandlerFunc) Handler {
	return &periodicHandler{name: name, handler: handler}
}

// TaskName is the qualified type name of v with pointers stripped.
func TaskName(v any) string {
	return strings.TrimLeft(fmt.Sprintf("%T", v), "*")
}

type payloadHandler[T any] struct {
	name    string
	handler TaskHandlerFunc[T]
}

func (h *payloadHandler[T]) Name() string { return h.name }

func (h *payloadHandler[T]) Handle(ctx context.Context, payload json.RawMessage) error {
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		return fmt.Errorf("decode %s payload: %w", h.name, err)
	}
	return h.handler(ctx, t)
}

type periodicHandler struct {
	name    string
	handler PeriodicTaskHandlerFunc
}

func (h *periodicHandler) Name() string { return h.name }

func (h *periodicHandler) Handle(ctx context.Context, _ json.RawMessage) error {
	return h.handler(ctx)
}
