package provider

import (
	"context"
	"testing"

	"github.com/arcway-dev/orchestra/internal/domain"
	"github.com/arcway-dev/orchestra/internal/orcherrors"
)

func TestRequirementsFor(t *testing.T) {
	if r := RequirementsFor(domain.RoleCoordinator); !r.NeedsToolCalling || r.NeedsFileEditing || r.NeedsTerminal {
		t.Fatalf("unexpected coordinator requirements: %+v", r)
	}
	if r := RequirementsFor(domain.RoleImplementor); !r.NeedsFileEditing || !r.NeedsTerminal {
		t.Fatalf("unexpected implementor requirements: %+v", r)
	}
	if r := RequirementsFor(domain.RoleVerifier); !r.NeedsTerminal || r.NeedsFileEditing {
		t.Fatalf("unexpected verifier requirements: %+v", r)
	}
}

func TestSelectReturnsHighestPriorityAmongSatisfying(t *testing.T) {
	r := NewRouter()
	low := NewStubProvider(ProviderCapabilities{Name: "low", SupportsToolCalling: true, Priority: 1}, "low")
	high := NewStubProvider(ProviderCapabilities{Name: "high", SupportsToolCalling: true, Priority: 10}, "high")
	unsuited := NewStubProvider(ProviderCapabilities{Name: "unsuited", Priority: 100}, "unsuited")

	r.Register(low)
	r.Register(unsuited)
	r.Register(high)

	got, err := r.Select(domain.RoleCoordinator)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got.Capabilities().Name != "high" {
		t.Fatalf("expected high-priority suitable provider, got %s", got.Capabilities().Name)
	}
}

func TestSelectBreaksTiesByRegistrationOrder(t *testing.T) {
	r := NewRouter()
	first := NewStubProvider(ProviderCapabilities{Name: "first", SupportsToolCalling: true, Priority: 5}, "")
	second := NewStubProvider(ProviderCapabilities{Name: "second", SupportsToolCalling: true, Priority: 5}, "")
	r.Register(first)
	r.Register(second)

	got, err := r.Select(domain.RoleCoordinator)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got.Capabilities().Name != "first" {
		t.Fatalf("expected tie broken by registration order (first), got %s", got.Capabilities().Name)
	}
}

func TestSelectFailsWithNoSuitableProvider(t *testing.T) {
	r := NewRouter()
	r.Register(NewStubProvider(ProviderCapabilities{Name: "readonly"}, ""))

	_, err := r.Select(domain.RoleImplementor)
	if !orcherrors.Is(err, orcherrors.KindRoutingNoSuitable) {
		t.Fatalf("expected KindRoutingNoSuitable, got %v", err)
	}
}

func TestRouterIsHealthyConjunction(t *testing.T) {
	r := NewRouter()
	healthy := NewStubProvider(ProviderCapabilities{Name: "a"}, "")
	unhealthy := NewStubProvider(ProviderCapabilities{Name: "b"}, "")
	unhealthy.Healthy = false

	r.Register(healthy)
	if !r.IsHealthy(context.Background()) {
		t.Fatal("expected healthy with single healthy provider")
	}

	r.Register(unhealthy)
	if r.IsHealthy(context.Background()) {
		t.Fatal("expected unhealthy once an unhealthy provider is registered")
	}
}

func TestRouterInterruptFansOutToAllProviders(t *testing.T) {
	r := NewRouter()
	a := NewStubProvider(ProviderCapabilities{Name: "a"}, "")
	b := NewStubProvider(ProviderCapabilities{Name: "b"}, "")
	r.Register(a)
	r.Register(b)

	if err := r.Interrupt(context.Background(), "agent-1"); err != nil {
		t.Fatalf("Interrupt: %v", err)
	}
}
