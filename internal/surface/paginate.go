package surface

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"

	"domscout/internal/engine"
)

// PageFunc fetches the page starting at start holding at most count items.
type PageFunc[T any] func(ctx context.Context, start, count int) ([]T, error)

// Paginate walks pages of pageSize until an empty or short page. A fetch error is
// yielded once and ends the sequence.
func Paginate[T any](ctx context.Context, pageSize int, fetch PageFunc[T]) iter.Seq2[T, error] {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return func(yield func(T, error) bool) {
		var zero T
		for start := 0; ; start += pageSize {
			if err := ctx.Err(); err != nil {
				yield(zero, err)
				return
			}
			page, err := fetch(ctx, start, pageSize)
			if err != nil {
				yield(zero, err)
				return
			}
			for _, item := range page {
				if !yield(item, nil) {
					return
				}
			}
			if len(page) < pageSize {
				return
			}
		}
	}
}

// Records returns a PageFunc calling a record-returning method with the given filters.
func Records(c Caller, method string, eventFilter, tagFilter []string) PageFunc[engine.Record] {
	if eventFilter == nil {
		eventFilter = []string{}
	}
	if tagFilter == nil {
		tagFilter = []string{}
	}
	return func(ctx context.Context, start, count int) ([]engine.Record, error) {
		raw, err := c.Call(ctx, method, EncodeArgs(eventFilter, tagFilter, start, count))
		if err != nil {
			return nil, err
		}
		var page []engine.Record
		if err := json.Unmarshal(raw, &page); err != nil {
			return nil, fmt.Errorf("decode %s page: %w", method, err)
		}
		return page, nil
	}
}

// Timers returns a PageFunc for get_set_timeouts or get_set_intervals.
func Timers(c Caller, method string) PageFunc[engine.TimerRecord] {
	return func(ctx context.Context, start, count int) ([]engine.TimerRecord, error) {
		raw, err := c.Call(ctx, method, EncodeArgs(start, count))
		if err != nil {
			return nil, err
		}
		var page []engine.TimerRecord
		if err := json.Unmarshal(raw, &page); err != nil {
			return nil, fmt.Errorf("decode %s page: %w", method, err)
		}
		return page, nil
	}
}

// AllEventListeners chains every explicit listener followed by every declarative one.
// Records appearing in both streams are not collapsed.
func AllEventListeners(ctx context.Context, c Caller, eventFilter, tagFilter []string, pageSize int) iter.Seq2[engine.Record, error] {
	return func(yield func(engine.Record, error) bool) {
		for r, err := range Paginate(ctx, pageSize, Records(c, MethodEventListeners, eventFilter, tagFilter)) {
			if !yield(r, err) || err != nil {
				return
			}
		}
		for r, err := range Paginate(ctx, pageSize, Records(c, MethodElementsWithEventHandlers, eventFilter, tagFilter)) {
			if !yield(r, err) || err != nil {
				return
			}
		}
	}
}

// Collect drains seq into a slice, stopping at the first error.
func Collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	var out []T
	for item, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, item)
	}
	return out, nil
}

// DispatchEvent calls dispatch_event through c.
func DispatchEvent(ctx context.Context, c Caller, selector, eventType string) (bool, error) {
	raw, err := c.Call(ctx, MethodDispatchEvent, EncodeArgs(selector, eventType))
	if err != nil {
		return false, err
	}
	var ok bool
	if err := json.Unmarshal(raw, &ok); err != nil {
		return false, fmt.Errorf("decode dispatch result: %w", err)
	}
	return ok, nil
}

// JSErrors calls get_js_errors through c.
func JSErrors(ctx context.Context, c Caller) ([]string, error) {
	raw, err := c.Call(ctx, MethodJSErrors, EncodeArgs())
	if err != nil {
		return nil, err
	}
	var msgs []string
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return nil, fmt.Errorf("decode errors: %w", err)
	}
	return msgs, nil
}
