package pipeline

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestRunStopsAtFirstFailure(t *testing.T) {
	var ran []string
	boom := errors.New("boom")
	record := func(name string, err error) func(context.Context) error {
		return func(context.Context) error {
			ran = append(ran, name)
			return err
		}
	}

	err := New("test").
		Add("validate", record("validate", nil)).
		Add("create_cohorts", record("create_cohorts", boom)).
		Add("parental_income", record("parental_income", nil)).
		Run(context.Background())

	var stepErr *StepError
	if !errors.As(err, &stepErr) || stepErr.Step != "create_cohorts" || stepErr.Index != 2 {
		t.Fatalf("unexpected error %v", err)
	}
	if !errors.Is(err, boom) {
		t.Fatal("expected the step error to be wrapped")
	}
	if !reflect.DeepEqual(ran, []string{"validate", "create_cohorts"}) {
		t.Fatalf("unexpected steps run %v", ran)
	}
}

func TestRunHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := New("test").Add("validate", func(context.Context) error {
		called = true
		return nil
	}).Run(ctx)
	if !errors.Is(err, context.Canceled) || called {
		t.Fatalf("expected cancellation before the first step, got %v", err)
	}
}
