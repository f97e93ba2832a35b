package actions

import (
	"context"
	"errors"
	"testing"
)

func newTestDescriptor(name string, policy Policy) *ActionDescriptor {
	return &ActionDescriptor{
		Name:        name,
		Description: "test action",
		Activation:  policy,
		NewExecutor: func(params map[string]any) (Executor, error) {
			return ExecutorFunc(func(ctx context.Context) (Result, error) {
				return Result{Success: true}, nil
			}), nil
		},
	}
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(newTestDescriptor("ping", Always())); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	desc, ok := reg.Get("ping")
	if !ok {
		t.Fatal("expected ping to be registered")
	}
	if desc.Activation.Kind != PolicyAlways {
		t.Errorf("policy kind = %q, want always", desc.Activation.Kind)
	}
}

func TestRegistry_DuplicateName(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(newTestDescriptor("ping", Always())); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	err := reg.Register(newTestDescriptor("ping", Never()))
	if !errors.Is(err, ErrDuplicateAction) {
		t.Errorf("expected ErrDuplicateAction, got %v", err)
	}
}

func TestRegistry_RejectsBuiltinShadow(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(newTestDescriptor("no_reply", Always())); err == nil {
		t.Error("expected error registering built-in name")
	}
}

func TestRegistry_Unregister(t *testing.T) {
	reg := NewRegistry()
	reg.Register(newTestDescriptor("ping", Always()))
	reg.Unregister("ping")
	if _, ok := reg.Get("ping"); ok {
		t.Error("ping still present after unregister")
	}
	// unknown names are a no-op
	reg.Unregister("missing")
}

func TestRegistry_EnabledExcludesNever(t *testing.T) {
	reg := NewRegistry()
	reg.Register(newTestDescriptor("a", Always()))
	reg.Register(newTestDescriptor("b", Never()))

	enabled := reg.Enabled()
	if _, ok := enabled["a"]; !ok {
		t.Error("expected a in enabled set")
	}
	if _, ok := enabled["b"]; ok {
		t.Error("NEVER action b must not be in enabled set")
	}

	// Snapshot keeps NEVER actions for the filter to exclude itself.
	if _, ok := reg.Snapshot()["b"]; !ok {
		t.Error("expected b in full snapshot")
	}
}

func TestRegistry_ListSorted(t *testing.T) {
	reg := NewRegistry()
	reg.Register(newTestDescriptor("zeta", Always()))
	reg.Register(newTestDescriptor("alpha", Always()))

	names := reg.List()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "zeta" {
		t.Errorf("list = %v, want [alpha zeta]", names)
	}
	if reg.Count() != 2 {
		t.Errorf("count = %d, want 2", reg.Count())
	}
}
