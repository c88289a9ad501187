package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/marketcart/api/internal/domain"
	"github.com/marketcart/api/internal/platform/requestctx"
)

func serveLogged(t *testing.T, inner http.HandlerFunc) []observer.LoggedEntry {
	t.Helper()
	core, logs := observer.New(zap.InfoLevel)
	handler := InjectLoggerMiddleware(zap.New(core))(RequestLoggerMiddleware()(inner))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/seller/orders", nil))
	return logs.FilterMessage("request completed").All()
}

func TestRequestLoggerNamesVerifiedCaller(t *testing.T) {
	entries := serveLogged(t, func(w http.ResponseWriter, r *http.Request) {
		requestctx.SetCaller(r.Context(), domain.Actor{ID: "seller-1\n", Role: domain.RoleSeller})
		w.WriteHeader(http.StatusNoContent)
	})
	if len(entries) != 1 {
		t.Fatalf("expected one completion entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["actor_id"] != "seller-1" || fields["actor_role"] != "seller" {
		t.Fatalf("unexpected caller fields %v", fields)
	}
	if fields["status"] != int64(http.StatusNoContent) {
		t.Fatalf("unexpected status field %v", fields["status"])
	}
}

func TestRequestLoggerAnonymousCaller(t *testing.T) {
	entries := serveLogged(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	if len(entries) != 1 {
		t.Fatalf("expected one completion entry, got %d", len(entries))
	}
	if entries[0].Level != zap.WarnLevel {
		t.Fatalf("expected 4xx to log at warn, got %s", entries[0].Level)
	}
	if _, ok := entries[0].ContextMap()["actor_id"]; ok {
		t.Fatalf("anonymous request must not carry actor fields")
	}
}

func TestClean(t *testing.T) {
	if got := clean("ord\x1b[31m_1\r\n", 64); got != "ord[31m_1" {
		t.Fatalf("clean = %q", got)
	}
	if got := clean("ĐơnHàng", 3); got != "Đơn" {
		t.Fatalf("expected rune aware truncation, got %q", got)
	}
	if cleanRoute("") != "/" {
		t.Fatalf("empty route must log as root")
	}
}
