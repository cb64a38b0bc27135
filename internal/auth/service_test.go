package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	store := NewMemoryStore()
	svc, err := NewService(context.Background(), Config{
		Mode: ModeJWT,
		JWT: JWTOptions{
			Secret:   "test-secret",
			Issuer:   "agenthub",
			Audience: []string{"agenthub-api"},
		},
		Seeds: []Seed{
			{
				Username:    "operator",
				Password:    "s3cret",
				Roles:       []string{"operator"},
				Permissions: []string{"route:execute", "tasks:read"},
			},
			{Username: "ghost", Password: "boo", Disabled: true},
		},
	}, store)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestAuthenticateAndVerify(t *testing.T) {
	svc := newTestService(t)

	pair, err := svc.Authenticate(context.Background(), TokenRequest{
		GrantType: "password",
		Username:  "operator",
		Password:  "s3cret",
	})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("expected both tokens, got %+v", pair)
	}
	if pair.TokenType != "Bearer" {
		t.Fatalf("unexpected token type %q", pair.TokenType)
	}

	subject, err := svc.Verify(context.Background(), pair.AccessToken)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if subject.Username != "operator" {
		t.Fatalf("unexpected subject %q", subject.Username)
	}
	if !subject.HasPermission("route:execute") {
		t.Fatalf("expected route:execute permission")
	}
	if err := subject.Authorize("tasks:read"); err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if err := subject.Authorize("admin:all"); err == nil {
		t.Fatalf("expected permission denied")
	}
}

func TestAuthenticateRejectsBadCredentials(t *testing.T) {
	svc := newTestService(t)

	if _, err := svc.Authenticate(context.Background(), TokenRequest{Username: "operator", Password: "wrong"}); err != ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), TokenRequest{Username: "nobody", Password: "x"}); err != ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), TokenRequest{Username: "ghost", Password: "boo"}); err != ErrSubjectRevoked {
		t.Fatalf("expected ErrSubjectRevoked, got %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), TokenRequest{GrantType: "client_credentials", Username: "operator", Password: "s3cret"}); err == nil {
		t.Fatalf("expected unsupported grant error")
	}
}

func TestVerifyRejectsRefreshAndGarbage(t *testing.T) {
	svc := newTestService(t)

	pair, err := svc.Authenticate(context.Background(), TokenRequest{Username: "operator", Password: "s3cret"})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if _, err := svc.Verify(context.Background(), pair.RefreshToken); err == nil {
		t.Fatalf("refresh token must not pass access verification")
	}
	if _, err := svc.Verify(context.Background(), "not.a.token"); err == nil {
		t.Fatalf("expected invalid token error")
	}
}

func TestDisabledModePassthrough(t *testing.T) {
	svc, err := NewService(context.Background(), Config{Mode: ModeDisabled}, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if svc.Enabled() {
		t.Fatalf("disabled service must report Enabled()==false")
	}

	called := false
	handler := Middleware(svc, MiddlewareConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/agents", nil))
	if !called {
		t.Fatalf("handler not invoked in disabled mode")
	}
}

func TestMiddlewareEnforcesPermissions(t *testing.T) {
	svc := newTestService(t)
	pair, err := svc.Authenticate(context.Background(), TokenRequest{Username: "operator", Password: "s3cret"})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	var seen *Subject
	handler := Middleware(svc, MiddlewareConfig{
		RequiredPermissions: map[string][]string{
			"POST /api/v1/route": {"route:execute"},
			"POST /api/v1/admin": {"admin:all"},
		},
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = SubjectFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/route", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if seen == nil || seen.Username != "operator" {
		t.Fatalf("subject missing from context")
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/admin", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/route", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
