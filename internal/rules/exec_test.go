package rules

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"basecore/internal/domain"
)

type fakeQuerier struct {
	mu      sync.Mutex
	calls   int
	lastSQL string
	args    []map[string]any
	result  any
	err     error
	block   bool // when true, wait for ctx cancellation
}

func (q *fakeQuerier) QueryScalar(ctx context.Context, query string, args map[string]any) (any, error) {
	q.mu.Lock()
	q.calls++
	q.lastSQL = query
	q.args = append(q.args, args)
	block, err, result := q.block, q.err, q.result
	q.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (q *fakeQuerier) callCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.calls
}

var teamMacro = &domain.Macro{
	Name:       "team_of",
	Parameters: []string{"user"},
	SQLQuery:   "SELECT team_id FROM memberships WHERE user_id = :user",
}

func TestEngineMemoizesPerArgumentTuple(t *testing.T) {
	q := &fakeQuerier{result: int64(7)}
	e := NewEngine(q)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		v, err := e.Execute(ctx, teamMacro, []string{"'u1'"})
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if v != int64(7) {
			t.Fatalf("result = %v", v)
		}
	}
	if q.callCount() != 1 {
		t.Errorf("querier calls = %d, want 1 (memoized)", q.callCount())
	}

	if _, err := e.Execute(ctx, teamMacro, []string{"'u2'"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if q.callCount() != 2 {
		t.Errorf("querier calls = %d, want 2 (distinct args)", q.callCount())
	}
}

func TestEngineMemoDoesNotCrossEngines(t *testing.T) {
	q := &fakeQuerier{result: int64(7)}
	ctx := context.Background()

	if _, err := NewEngine(q).Execute(ctx, teamMacro, []string{"'u1'"}); err != nil {
		t.Fatal(err)
	}
	if _, err := NewEngine(q).Execute(ctx, teamMacro, []string{"'u1'"}); err != nil {
		t.Fatal(err)
	}
	if q.callCount() != 2 {
		t.Errorf("querier calls = %d, want 2 (fresh engine per evaluation)", q.callCount())
	}
}

func TestEngineFailuresNotMemoized(t *testing.T) {
	q := &fakeQuerier{err: errors.New("storage down")}
	e := NewEngine(q)
	ctx := context.Background()

	_, err := e.Execute(ctx, teamMacro, []string{"'u1'"})
	var execErr *domain.MacroExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("error = %v, want MacroExecutionError", err)
	}

	q.mu.Lock()
	q.err = nil
	q.result = int64(9)
	q.mu.Unlock()

	v, err := e.Execute(ctx, teamMacro, []string{"'u1'"})
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if v != int64(9) {
		t.Errorf("result = %v", v)
	}
	if q.callCount() != 2 {
		t.Errorf("querier calls = %d, want 2 (failure retried)", q.callCount())
	}
}

func TestEngineArityMismatch(t *testing.T) {
	e := NewEngine(&fakeQuerier{result: int64(1)})
	_, err := e.Execute(context.Background(), teamMacro, nil)
	var execErr *domain.MacroExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("error = %v, want MacroExecutionError", err)
	}
}

func TestEngineTimeout(t *testing.T) {
	q := &fakeQuerier{block: true}
	e := NewEngine(q, WithTimeout(20*time.Millisecond))

	start := time.Now()
	_, err := e.Execute(context.Background(), teamMacro, []string{"'u1'"})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	var execErr *domain.MacroExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("error = %v, want MacroExecutionError", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error should wrap context.DeadlineExceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("timeout took %v", elapsed)
	}
}

func TestEngineArgumentCoercion(t *testing.T) {
	q := &fakeQuerier{result: int64(1)}
	e := NewEngine(q)

	m := &domain.Macro{
		Name:       "check",
		Parameters: []string{"a", "b", "c", "d"},
		SQLQuery:   "SELECT 1",
	}
	if _, err := e.Execute(context.Background(), m, []string{"'it''s'", "5", "2.5", "true"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	q.mu.Lock()
	got := q.args[0]
	q.mu.Unlock()

	if got["a"] != "it's" {
		t.Errorf("a = %#v, want unquoted string", got["a"])
	}
	if got["b"] != int64(5) {
		t.Errorf("b = %#v, want int64", got["b"])
	}
	if got["c"] != 2.5 {
		t.Errorf("c = %#v, want float64", got["c"])
	}
	if got["d"] != true {
		t.Errorf("d = %#v, want bool", got["d"])
	}
}

func TestEngineConcurrentSingleExecution(t *testing.T) {
	q := &fakeQuerier{result: int64(3)}
	e := NewEngine(q)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.Execute(ctx, teamMacro, []string{"'u1'"}); err != nil {
				t.Errorf("Execute: %v", err)
			}
		}()
	}
	wg.Wait()

	// singleflight plus the memo map collapse concurrent identical
	// executions; the querier must see far fewer calls than goroutines.
	if q.callCount() >= 16 {
		t.Errorf("querier calls = %d, want deduplicated", q.callCount())
	}
}
