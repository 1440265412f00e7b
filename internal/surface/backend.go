package surface

import (
	"context"

	"domscout/internal/engine"
)

// Backend is a host the surface can query: an in-memory engine Context or a live page.
type Backend interface {
	ElementsWithEventHandlers(ctx context.Context, eventFilter, tagFilter []string, start, count int) (engine.Page, error)
	EventListeners(ctx context.Context, eventFilter, tagFilter []string, start, count int) (engine.Page, error)
	Timeouts(ctx context.Context, start, count int) (engine.TimerPage, error)
	Intervals(ctx context.Context, start, count int) (engine.TimerPage, error)
	Dispatch(ctx context.Context, selector, eventType string) (bool, error)
	Errors(ctx context.Context) ([]string, error)
}

// Local adapts an in-memory engine Context.
func Local(c *engine.Context) Backend {
	return localBackend{c: c}
}

type localBackend struct {
	c *engine.Context
}

func (b localBackend) ElementsWithEventHandlers(_ context.Context, eventFilter, tagFilter []string, start, count int) (engine.Page, error) {
	return b.c.GetElementsWithEventHandlers(eventFilter, tagFilter, start, count), nil
}

func (b localBackend) EventListeners(_ context.Context, eventFilter, tagFilter []string, start, count int) (engine.Page, error) {
	return b.c.GetEventListeners(eventFilter, tagFilter, start, count), nil
}

func (b localBackend) Timeouts(_ context.Context, start, count int) (engine.TimerPage, error) {
	return b.c.GetTimeouts(start, count), nil
}

func (b localBackend) Intervals(_ context.Context, start, count int) (engine.TimerPage, error) {
	return b.c.GetIntervals(start, count), nil
}

func (b localBackend) Dispatch(_ context.Context, selector, eventType string) (bool, error) {
	return b.c.Dispatch(selector, eventType), nil
}

func (b localBackend) Errors(context.Context) ([]string, error) {
	return b.c.Errors().Messages(), nil
}
