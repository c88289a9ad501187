package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	firebaseauth "firebase.google.com/go/v4/auth"

	"github.com/marketcart/api/internal/domain"
	"github.com/marketcart/api/internal/platform/requestctx"
)

type stubTokenVerifier struct {
	token    *firebaseauth.Token
	err      error
	received string
}

func (s *stubTokenVerifier) VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error) {
	s.received = idToken
	if s.err != nil {
		return nil, s.err
	}
	return s.token, nil
}

func serve(t *testing.T, handler http.Handler, header string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON body: %v", err)
	}
	code, _ := body["error"].(string)
	return code
}

func TestRequireFirebaseAuth_BuildsActorFromClaims(t *testing.T) {
	verifier := &stubTokenVerifier{
		token: &firebaseauth.Token{
			UID: "seller-1",
			Claims: map[string]interface{}{
				"role":  "Seller",
				"email": "shop@example.com",
				"name":  "Corner Shop",
			},
		},
	}
	authn := NewAuthenticator(verifier)

	called := false
	handler := authn.RequireFirebaseAuth(domain.RoleSeller)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		actor, ok := ActorFromContext(r.Context())
		if !ok {
			t.Fatalf("expected actor in context")
		}
		want := domain.Actor{ID: "seller-1", Role: domain.RoleSeller, Email: "shop@example.com", Name: "Corner Shop"}
		if actor != want {
			t.Fatalf("unexpected actor %+v", actor)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := serve(t, handler, "Bearer token-value")
	if rr.Code != http.StatusNoContent || !called {
		t.Fatalf("expected handler to run, got %d", rr.Code)
	}
	if verifier.received != "token-value" {
		t.Fatalf("expected verifier to receive token-value, got %s", verifier.received)
	}
}

func TestRequireFirebaseAuth_UnknownRoleDefaultsToBuyer(t *testing.T) {
	verifier := &stubTokenVerifier{
		token: &firebaseauth.Token{UID: "u-1", Claims: map[string]interface{}{"role": []interface{}{"wizard"}}},
	}
	handler := NewAuthenticator(verifier).RequireFirebaseAuth()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFromContext(r.Context())
		if actor.Role != domain.RoleBuyer {
			t.Fatalf("expected buyer role, got %q", actor.Role)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	if rr := serve(t, handler, "Bearer t"); rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
}

func TestRequireFirebaseAuth_RejectsWrongRole(t *testing.T) {
	verifier := &stubTokenVerifier{
		token: &firebaseauth.Token{UID: "u-1", Claims: map[string]interface{}{"role": "buyer"}},
	}
	handler := NewAuthenticator(verifier).RequireFirebaseAuth(domain.RoleShipper)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler should not execute for buyer")
	}))

	rr := serve(t, handler, "Bearer t")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	if code := errorCode(t, rr); code != "insufficient_role" {
		t.Fatalf("unexpected error code %s", code)
	}
}

func TestRequireFirebaseAuth_ExpiredToken(t *testing.T) {
	handler := NewAuthenticator(&stubTokenVerifier{err: ErrTokenExpired}).RequireFirebaseAuth()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler should not execute on expired token")
	}))

	rr := serve(t, handler, "Bearer expired-token")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if code := errorCode(t, rr); code != "token_expired" {
		t.Fatalf("expected token_expired error, got %v", code)
	}
}

func TestRequireFirebaseAuth_MissingHeader(t *testing.T) {
	handler := NewAuthenticator(&stubTokenVerifier{}).RequireFirebaseAuth()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler should not execute without token")
	}))

	for _, header := range []string{"", "Basic abc", "Bearer   "} {
		rr := serve(t, handler, header)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401, got %d", header, rr.Code)
		}
	}
}

func TestRequireFirebaseAuth_RecordsCallerUpstream(t *testing.T) {
	verifier := &stubTokenVerifier{
		token: &firebaseauth.Token{UID: "shipper-1", Claims: map[string]interface{}{"role": "shipper"}},
	}
	handler := NewAuthenticator(verifier).RequireFirebaseAuth()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	ctx := requestctx.WithCallerSlot(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer t")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	caller, ok := requestctx.Caller(ctx)
	if !ok || caller.ID != "shipper-1" || caller.Role != domain.RoleShipper {
		t.Fatalf("expected caller to be visible upstream, got %+v (%v)", caller, ok)
	}
}
