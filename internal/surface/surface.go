// Package surface exposes the discovery engine to an external driver as a table of named
// methods taking and returning JSON only, plus the driver-side helpers that page through
// those methods.
package surface

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"domscout/internal/dom"
	"domscout/internal/logging"
)

// Method names.
const (
	MethodElementsWithEventHandlers = "get_elements_with_event_handlers"
	MethodEventListeners            = "get_event_listeners"
	MethodSetTimeouts               = "get_set_timeouts"
	MethodSetIntervals              = "get_set_intervals"
	MethodDispatchEvent             = "dispatch_event"
	MethodJSErrors                  = "get_js_errors"
)

// DefaultPageSize is used when a paginated call omits count.
const DefaultPageSize = 20

var (
	// ErrUnknownMethod is returned for names outside the method table.
	ErrUnknownMethod = errors.New("unknown method")
	// ErrBadArguments is returned when arguments do not decode or fail validation.
	ErrBadArguments = errors.New("bad arguments")
)

// Caller invokes a surface method by name. Surface and Client both implement it.
type Caller interface {
	Call(ctx context.Context, method string, args json.RawMessage) (json.RawMessage, error)
}

type handler func(ctx context.Context, b Backend, args json.RawMessage) (any, error)

// Surface is the method table bound to a backend. Calls are serialized because the
// engine is single-threaded.
type Surface struct {
	mu       sync.Mutex
	backend  Backend
	pageSize int
	methods  map[string]handler
}

// New returns a Surface over b.
func New(b Backend, pageSize int) *Surface {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	s := &Surface{backend: b, pageSize: pageSize}
	s.methods = map[string]handler{
		MethodElementsWithEventHandlers: s.elementsWithEventHandlers,
		MethodEventListeners:            s.eventListeners,
		MethodSetTimeouts:               s.timeouts,
		MethodSetIntervals:              s.intervals,
		MethodDispatchEvent:             s.dispatch,
		MethodJSErrors:                  s.jsErrors,
	}
	return s
}

// SetBackend swaps the backend, as when the document is reloaded.
func (s *Surface) SetBackend(b Backend) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backend = b
}

// Methods lists the method names in sorted order.
func (s *Surface) Methods() []string {
	names := make([]string, 0, len(s.methods))
	for name := range s.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Call runs method with positional JSON array arguments and returns the JSON result.
func (s *Surface) Call(ctx context.Context, method string, args json.RawMessage) (json.RawMessage, error) {
	h, ok := s.methods[method]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, method)
	}

	s.mu.Lock()
	result, err := h(ctx, s.backend, args)
	s.mu.Unlock()
	if err != nil {
		logging.SurfaceWarn("%s failed: %v", method, err)
		return nil, err
	}

	out, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode %s result: %w", method, err)
	}
	logging.Surface("%s -> %d bytes", method, len(out))
	return out, nil
}

func (s *Surface) filterArgs(args json.RawMessage) (eventFilter, tagFilter []string, start, count int, err error) {
	count = s.pageSize
	if err = decodeArgs(args, &eventFilter, &tagFilter, &start, &count); err != nil {
		return nil, nil, 0, 0, err
	}
	return eventFilter, tagFilter, start, count, nil
}

func (s *Surface) elementsWithEventHandlers(ctx context.Context, b Backend, args json.RawMessage) (any, error) {
	ef, tf, start, count, err := s.filterArgs(args)
	if err != nil {
		return nil, err
	}
	return b.ElementsWithEventHandlers(ctx, ef, tf, start, count)
}

func (s *Surface) eventListeners(ctx context.Context, b Backend, args json.RawMessage) (any, error) {
	ef, tf, start, count, err := s.filterArgs(args)
	if err != nil {
		return nil, err
	}
	return b.EventListeners(ctx, ef, tf, start, count)
}

func (s *Surface) timeouts(ctx context.Context, b Backend, args json.RawMessage) (any, error) {
	start, count := 0, s.pageSize
	if err := decodeArgs(args, &start, &count); err != nil {
		return nil, err
	}
	return b.Timeouts(ctx, start, count)
}

func (s *Surface) intervals(ctx context.Context, b Backend, args json.RawMessage) (any, error) {
	start, count := 0, s.pageSize
	if err := decodeArgs(args, &start, &count); err != nil {
		return nil, err
	}
	return b.Intervals(ctx, start, count)
}

func (s *Surface) dispatch(ctx context.Context, b Backend, args json.RawMessage) (any, error) {
	var selector, eventType string
	if err := decodeArgs(args, &selector, &eventType); err != nil {
		return nil, err
	}
	if selector == "" {
		return nil, fmt.Errorf("%w: selector is required", ErrBadArguments)
	}
	if !dom.ValidEventType(eventType) {
		return nil, fmt.Errorf("%w: invalid event type %q", ErrBadArguments, eventType)
	}
	return b.Dispatch(ctx, selector, eventType)
}

func (s *Surface) jsErrors(ctx context.Context, b Backend, args json.RawMessage) (any, error) {
	if err := decodeArgs(args); err != nil {
		return nil, err
	}
	msgs, err := b.Errors(ctx)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []string{}
	}
	return msgs, nil
}

// decodeArgs fills targets from a positional JSON array. Missing trailing positions and
// JSON nulls keep the target's current value. An empty body means no arguments.
func decodeArgs(raw json.RawMessage, targets ...any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var positional []json.RawMessage
	if err := json.Unmarshal(raw, &positional); err != nil {
		return fmt.Errorf("%w: expected a JSON array: %v", ErrBadArguments, err)
	}
	if len(positional) > len(targets) {
		return fmt.Errorf("%w: expected at most %d arguments, got %d", ErrBadArguments, len(targets), len(positional))
	}
	for i, p := range positional {
		if bytes.Equal(bytes.TrimSpace(p), []byte("null")) {
			continue
		}
		if err := json.Unmarshal(p, targets[i]); err != nil {
			return fmt.Errorf("%w: argument %d: %v", ErrBadArguments, i, err)
		}
	}
	return nil
}

// EncodeArgs renders positional arguments as a JSON array.
func EncodeArgs(args ...any) json.RawMessage {
	if args == nil {
		args = []any{}
	}
	out, err := json.Marshal(args)
	if err != nil {
		// Arguments are strings, string slices and ints.
		panic(fmt.Sprintf("surface: encode arguments: %v", err))
	}
	return out
}
