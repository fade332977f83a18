package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/climatequery/engine/internal/types"
)

// testPlugin is a hand-written Plugin fake used to exercise the
// EventManager's chaining and short-circuit behavior directly, without
// going through any real stage.
type testPlugin struct {
	name          string
	events        []types.EventType
	shouldError   bool
	errorToReturn *PluginError
}

func (p *testPlugin) OnEvent(
	ctx context.Context, eventType types.EventType, state *types.PipelineState, next func() *PluginError,
) *PluginError {
	if p.shouldError {
		return p.errorToReturn
	}
	fmt.Printf("plugin %s triggered\n", p.name)
	err := next()
	fmt.Printf("plugin %s finished\n", p.name)
	return err
}

func (p *testPlugin) ActivationEvents() []types.EventType { return p.events }

func TestTrigger(t *testing.T) {
	ctx := context.Background()
	state := &types.PipelineState{}
	testEvent := types.EventType("test_event")

	t.Run("NoPluginsRegistered", func(t *testing.T) {
		manager := &EventManager{}
		if err := manager.Trigger(ctx, testEvent, state); err != nil {
			t.Errorf("expected nil error, got %v", err)
		}
	})

	t.Run("SinglePluginSuccess", func(t *testing.T) {
		manager := &EventManager{}
		plugin := &testPlugin{name: "single", events: []types.EventType{testEvent}}
		manager.Register(plugin)

		if err := manager.Trigger(ctx, testEvent, state); err != nil {
			t.Errorf("expected nil error, got %v", err)
		}
	})

	t.Run("PluginChainRunsInRegistrationOrder", func(t *testing.T) {
		manager := &EventManager{}
		var order []string
		recorder := func(name string) pluginFunc {
			return func(ctx context.Context, eventType types.EventType, state *types.PipelineState, next func() *PluginError) *PluginError {
				order = append(order, name)
				return next()
			}
		}
		manager.Register(recorder("first"))
		manager.Register(recorder("middle"))
		manager.Register(recorder("second"))

		if err := manager.Trigger(ctx, testEvent, state); err != nil {
			t.Errorf("expected nil error, got %v", err)
		}
		if got := fmt.Sprint(order); got != "[first middle second]" {
			t.Fatalf("expected plugins to run in registration order, got %s", got)
		}
	})

	t.Run("EarlyPluginErrorShortCircuitsLaterPlugins", func(t *testing.T) {
		manager := &EventManager{}
		ran := false
		failer := &testPlugin{name: "failer", events: []types.EventType{testEvent}, shouldError: true, errorToReturn: ErrInternal}
		never := pluginFunc(func(ctx context.Context, eventType types.EventType, state *types.PipelineState, next func() *PluginError) *PluginError {
			ran = true
			return next()
		})
		manager.Register(failer)
		manager.Register(never)

		err := manager.Trigger(ctx, testEvent, state)
		if err == nil {
			t.Fatal("expected a non-nil error")
		}
		if err.ErrorKind != "Internal" {
			t.Errorf("expected ErrorKind Internal, got %s", err.ErrorKind)
		}
		if ran {
			t.Error("a plugin registered after a failing plugin must not run")
		}
	})

	t.Run("DistinctEventTypesHaveIndependentChains", func(t *testing.T) {
		manager := &EventManager{}
		otherEvent := types.EventType("other_event")
		onTest := &testPlugin{name: "on_test", events: []types.EventType{testEvent}}
		onOther := &testPlugin{name: "on_other", events: []types.EventType{otherEvent}, shouldError: true, errorToReturn: ErrTimeout}
		manager.Register(onTest)
		manager.Register(onOther)

		if err := manager.Trigger(ctx, testEvent, state); err != nil {
			t.Errorf("test_event chain must be unaffected by other_event's registration: %v", err)
		}
	})
}

// pluginFunc adapts a bare function to the Plugin interface for tests that
// only need to observe ordering, not simulate a real stage's fields.
type pluginFunc func(ctx context.Context, eventType types.EventType, state *types.PipelineState, next func() *PluginError) *PluginError

func (f pluginFunc) OnEvent(
	ctx context.Context, eventType types.EventType, state *types.PipelineState, next func() *PluginError,
) *PluginError {
	return f(ctx, eventType, state, next)
}

func (f pluginFunc) ActivationEvents() []types.EventType {
	return []types.EventType{"test_event"}
}

func TestPluginError_WithErrorPreservesSentinelAndAttachesCause(t *testing.T) {
	cause := fmt.Errorf("index connection refused")
	wrapped := ErrRetrieverUnavailable.WithError(cause)

	if wrapped.ErrorKind != ErrRetrieverUnavailable.ErrorKind {
		t.Errorf("expected ErrorKind %s, got %s", ErrRetrieverUnavailable.ErrorKind, wrapped.ErrorKind)
	}
	if wrapped.Description != ErrRetrieverUnavailable.Description {
		t.Errorf("expected Description %q, got %q", ErrRetrieverUnavailable.Description, wrapped.Description)
	}
	if wrapped.Err != cause {
		t.Error("expected the wrapped error to carry the attached cause")
	}
	if ErrRetrieverUnavailable.Err != nil {
		t.Error("WithError must not mutate the shared sentinel")
	}
}
