package workers

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNewTask_AllBranches(t *testing.T) {
	type testCase struct {
		name      string
		fn        interface{}
		expectR   int
		expectErr func(error) bool
	}

	tests := []testCase{
		{
			name:      "func(ctx) (R, error) success",
			fn:        func(context.Context) (int, error) { return 7, nil },
			expectR:   7,
			expectErr: func(err error) bool { return err == nil },
		},
		{
			name:      "func(ctx) (R, error) failure",
			fn:        func(context.Context) (int, error) { return 0, errors.New("boom") },
			expectR:   0,
			expectErr: func(err error) bool { return err != nil && strings.Contains(err.Error(), "boom") },
		},
		{
			name:      "func(ctx) R",
			fn:        func(context.Context) int { return 5 },
			expectR:   5,
			expectErr: func(err error) bool { return err == nil },
		},
		{
			name:      "func(ctx) error success",
			fn:        func(context.Context) error { return nil },
			expectR:   0,
			expectErr: func(err error) bool { return err == nil },
		},
		{
			name:      "func(ctx) error failure",
			fn:        func(context.Context) error { return errors.New("sad") },
			expectR:   0,
			expectErr: func(err error) bool { return err != nil && strings.Contains(err.Error(), "sad") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tk, err := newTask[int](tt.fn)
			if err != nil {
				t.Fatalf("newTask: unexpected error: %v", err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()

			got, execErr := tk.execute(ctx)
			if got != tt.expectR {
				t.Fatalf("execute result = %v, want %v", got, tt.expectR)
			}
			if !tt.expectErr(execErr) {
				t.Fatalf("unexpected error: %v", execErr)
			}
		})
	}
}

func TestNewTask_InvalidSignature(t *testing.T) {
	_, err := newTask[int](func(context.Context, int) {})
	if !errors.Is(err, ErrInvalidTask) {
		t.Fatalf("expected ErrInvalidTask, got %v", err)
	}
}

func TestTask_PanicRecovered(t *testing.T) {
	tk, err := newTask[int](func(context.Context) (int, error) { panic("kaboom") })
	if err != nil {
		t.Fatalf("newTask: unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, execErr := tk.execute(ctx)
	if execErr == nil || !errors.Is(execErr, ErrTaskPanicked) {
		t.Fatalf("expected ErrTaskPanicked, got %v", execErr)
	}
}

func TestTask_ContextCancellationWins(t *testing.T) {
	blocker := make(chan struct{})
	defer close(blocker)

	tk, err := newTask[int](func(ctx context.Context) (int, error) {
		<-blocker
		return 0, nil
	})
	if err != nil {
		t.Fatalf("newTask: unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, execErr := tk.execute(ctx)
	if !errors.Is(execErr, ErrTaskCancelled) {
		t.Fatalf("expected ErrTaskCancelled, got %v", execErr)
	}
}

func TestTaskError_DiscardsResult(t *testing.T) {
	tk, err := newTask[int](func(context.Context) error { return nil })
	if err != nil {
		t.Fatalf("newTask: unexpected error: %v", err)
	}
	if _, ok := tk.(*taskError[int]); !ok {
		t.Fatalf("expected *taskError[int], got %T", tk)
	}
}
