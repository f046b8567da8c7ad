package provider

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/arcway-dev/orchestra/internal/domain"
	"github.com/arcway-dev/orchestra/internal/provider/remote"
)

func TestRemoteProviderSatisfiesRouterSelection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/agent/rpc" {
			var req struct {
				ID any `json:"id"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			w.WriteHeader(http.StatusAccepted)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	caps := ProviderCapabilities{Name: "remote", SupportsToolCalling: true, Priority: 1}
	rp := NewRemoteProvider(remote.Config{Addr: srv.URL, RequestTimeout: time.Second}, caps, nil)

	router := NewRouter()
	router.Register(rp)

	got, err := router.Select(domain.RoleCoordinator)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got.Capabilities().Name != "remote" {
		t.Fatalf("expected remote provider selected, got %s", got.Capabilities().Name)
	}
}
