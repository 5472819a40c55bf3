package rules

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"basecore/internal/domain"
)

// DefaultMacroTimeout bounds every query-backed macro execution,
// independent of the surrounding request timeout. It caps the cost an
// administrator-authored macro can impose on every authorization check
// that uses it.
const DefaultMacroTimeout = 5 * time.Second

// Engine executes query-backed macros with per-instance memoization.
// One Engine is created per authorization evaluation; its cache is never
// shared across requests.
type Engine struct {
	querier domain.MacroQuerier
	timeout time.Duration
	limiter *rate.Limiter

	mu    sync.Mutex
	memo  map[string]any
	group singleflight.Group
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithTimeout overrides the execution timeout. Intended for tests.
func WithTimeout(d time.Duration) EngineOption {
	return func(e *Engine) { e.timeout = d }
}

// WithLimiter installs a token-bucket cap on query executions. The
// limiter is owned by the caller and may be shared across engines to
// bound aggregate macro query load.
func WithLimiter(l *rate.Limiter) EngineOption {
	return func(e *Engine) { e.limiter = l }
}

// NewEngine creates an execution engine over the given querier.
func NewEngine(querier domain.MacroQuerier, opts ...EngineOption) *Engine {
	e := &Engine{
		querier: querier,
		timeout: DefaultMacroTimeout,
		memo:    make(map[string]any),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs the macro's query with the given positional arguments.
// Results are memoized by (macro name, argument tuple) for the lifetime
// of the engine: a second call with identical arguments returns the
// cached scalar without touching storage. Failures are not cached.
func (e *Engine) Execute(ctx context.Context, m *domain.Macro, args []string) (any, error) {
	if len(args) != len(m.Parameters) {
		return nil, &domain.MacroExecutionError{
			Name: m.Name,
			Err:  fmt.Errorf("expected %d arguments, got %d", len(m.Parameters), len(args)),
		}
	}

	key := memoKey(m.Name, args)

	e.mu.Lock()
	if v, ok := e.memo[key]; ok {
		e.mu.Unlock()
		return v, nil
	}
	e.mu.Unlock()

	// singleflight collapses concurrent identical executions; the memo
	// map serves later calls.
	v, err, _ := e.group.Do(key, func() (any, error) {
		v, err := e.execute(ctx, m, args)
		if err != nil {
			return nil, err
		}
		e.mu.Lock()
		e.memo[key] = v
		e.mu.Unlock()
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (e *Engine) execute(ctx context.Context, m *domain.Macro, args []string) (any, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, &domain.MacroExecutionError{Name: m.Name, Err: err}
		}
	}

	named := make(map[string]any, len(args))
	for i, p := range m.Parameters {
		named[p] = coerceArg(args[i])
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	v, err := e.querier.QueryScalar(ctx, m.SQLQuery, named)
	if err != nil {
		return nil, &domain.MacroExecutionError{Name: m.Name, Err: err}
	}
	return v, nil
}

// memoKey builds the cache key from the macro name and argument tuple.
func memoKey(name string, args []string) string {
	var b strings.Builder
	b.WriteString(name)
	for _, a := range args {
		b.WriteByte(0)
		b.WriteString(a)
	}
	return b.String()
}

// coerceArg converts a raw argument text into a bindable value: quoted
// strings are unquoted, numbers and booleans parsed, anything else
// bound as raw text.
func coerceArg(arg string) any {
	if len(arg) >= 2 && arg[0] == '\'' && arg[len(arg)-1] == '\'' {
		return strings.ReplaceAll(arg[1:len(arg)-1], "''", "'")
	}
	if n, err := strconv.ParseInt(arg, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(arg, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(arg); err == nil {
		return b
	}
	return arg
}
