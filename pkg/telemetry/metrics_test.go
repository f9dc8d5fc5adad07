// SPDX-License-Identifier: Apache-2.0
package telemetry

import (
	"context"
	"testing"

	"github.com/jllopis/telos/pkg/errors"
)

func TestNewRuntimeMetrics(t *testing.T) {
	rm, err := NewRuntimeMetrics(context.Background())
	if err != nil {
		t.Fatalf("failed to create runtime metrics: %v", err)
	}
	if rm == nil {
		t.Fatal("expected non-nil RuntimeMetrics")
	}
}

func TestRecordAction(t *testing.T) {
	rm, _ := NewRuntimeMetrics(context.Background())
	ctx := context.Background()

	rm.RecordAction(ctx, "REPLY", 12.5, true)
	rm.RecordAction(ctx, "PUBLISH", 200.0, false)

	var nilMetrics *RuntimeMetrics
	nilMetrics.RecordAction(ctx, "REPLY", 1.0, true)
}

func TestRecordEvaluator(t *testing.T) {
	rm, _ := NewRuntimeMetrics(context.Background())
	ctx := context.Background()

	rm.RecordEvaluator(ctx, "REFLECTION", true)
	rm.RecordEvaluator(ctx, "FACT_EXTRACTOR", false)

	var nilMetrics *RuntimeMetrics
	nilMetrics.RecordEvaluator(ctx, "REFLECTION", true)
}

func TestRecordProvider(t *testing.T) {
	rm, _ := NewRuntimeMetrics(context.Background())
	ctx := context.Background()

	rm.RecordProvider(ctx, "TIME", 0.2)
	rm.RecordProvider(ctx, "RECENT_MESSAGES", 15.0)

	var nilMetrics *RuntimeMetrics
	nilMetrics.RecordProvider(ctx, "TIME", 0.1)
}

func TestRecordModel(t *testing.T) {
	rm, _ := NewRuntimeMetrics(context.Background())
	ctx := context.Background()

	rm.RecordModel(ctx, "TEXT_LARGE", true)
	rm.RecordModel(ctx, "TEXT_EMBEDDING", false)

	var nilMetrics *RuntimeMetrics
	nilMetrics.RecordModel(ctx, "TEXT_SMALL", true)
}

func TestRecordEventAndTask(t *testing.T) {
	rm, _ := NewRuntimeMetrics(context.Background())
	ctx := context.Background()

	rm.RecordEvent(ctx, "MESSAGE_RECEIVED", true)
	rm.RecordEvent(ctx, "RUN_ENDED", false)
	rm.RecordTask(ctx, "CHOOSE_OPTION", true)
	rm.RecordTask(ctx, "SEND_REMINDER", false)

	var nilMetrics *RuntimeMetrics
	nilMetrics.RecordEvent(ctx, "RUN_STARTED", true)
	nilMetrics.RecordTask(ctx, "CHOOSE_OPTION", true)
}

func TestRecordError(t *testing.T) {
	rm, _ := NewRuntimeMetrics(context.Background())
	ctx := context.Background()

	te := errors.New(errors.CodeModelError, "model overloaded", nil).WithRecoverable(true)
	rm.RecordError(ctx, te, "runtime")

	// Generic error maps to code UNKNOWN
	rm.RecordError(ctx, context.DeadlineExceeded, "task-sweeper")

	// Should not panic with nil error or metrics
	rm.RecordError(ctx, nil, "runtime")
	var nilMetrics *RuntimeMetrics
	nilMetrics.RecordError(ctx, te, "runtime")
}

func TestConcurrentMetrics(t *testing.T) {
	rm, _ := NewRuntimeMetrics(context.Background())
	ctx := context.Background()

	done := make(chan bool, 3)

	go func() {
		for i := 0; i < 10; i++ {
			rm.RecordAction(ctx, "REPLY", float64(i), i%2 == 0)
			rm.RecordProvider(ctx, "TIME", float64(i)*0.5)
		}
		done <- true
	}()

	go func() {
		te := errors.New(errors.CodeStoreError, "disk full", nil)
		for i := 0; i < 10; i++ {
			rm.RecordError(ctx, te, "store")
			rm.RecordModel(ctx, "TEXT_LARGE", i%2 == 0)
		}
		done <- true
	}()

	go func() {
		for i := 0; i < 10; i++ {
			rm.RecordEvent(ctx, "MESSAGE_RECEIVED", true)
			rm.RecordTask(ctx, "CHOOSE_OPTION", true)
		}
		done <- true
	}()

	<-done
	<-done
	<-done
}
