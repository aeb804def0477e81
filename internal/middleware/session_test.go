package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/authman/internal/model"
)

// --- モック定義 ---

type mockPrincipalResolver struct {
	resolvePrincipalFn func(ctx context.Context, token string) (*model.User, error)
}

func (m *mockPrincipalResolver) ResolvePrincipal(ctx context.Context, token string) (*model.User, error) {
	if m.resolvePrincipalFn != nil {
		return m.resolvePrincipalFn(ctx, token)
	}
	return nil, nil
}

var _ PrincipalResolver = (*mockPrincipalResolver)(nil)

// --- テスト ---

func TestSessionMiddleware_ValidSession_InjectsPrincipal(t *testing.T) {
	resolver := &mockPrincipalResolver{
		resolvePrincipalFn: func(ctx context.Context, token string) (*model.User, error) {
			if token != "valid-token" {
				t.Errorf("resolver received token %q, want %q", token, "valid-token")
			}
			return &model.User{ID: "user-123", Name: "Alice"}, nil
		},
	}

	var gotUserID string
	mw := NewSessionMiddleware(resolver)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := UserIDFromContext(r.Context())
		if err != nil {
			t.Errorf("UserIDFromContext() error = %v", err)
		}
		gotUserID = userID
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "valid-token"})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
	if gotUserID != "user-123" {
		t.Errorf("injected user ID = %q, want %q", gotUserID, "user-123")
	}
}

func TestSessionMiddleware_MissingCookie_Unauthorized(t *testing.T) {
	mw := NewSessionMiddleware(&mockPrincipalResolver{})
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called without a session cookie")
	}))

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestSessionMiddleware_AnonymousPrincipal_Unauthorized(t *testing.T) {
	resolver := &mockPrincipalResolver{
		resolvePrincipalFn: func(ctx context.Context, token string) (*model.User, error) {
			// 期限切れ・破棄済みセッションは匿名として(nil, nil)が返る
			return nil, nil
		},
	}

	mw := NewSessionMiddleware(resolver)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called for anonymous principal")
	}))

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "expired-token"})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestSessionMiddleware_ResolverError_ServiceUnavailable(t *testing.T) {
	resolver := &mockPrincipalResolver{
		resolvePrincipalFn: func(ctx context.Context, token string) (*model.User, error) {
			return nil, errors.New("store unreachable")
		},
	}

	mw := NewSessionMiddleware(resolver)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called when resolution fails")
	}))

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "some-token"})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusServiceUnavailable)
	}
}

func TestPrincipalFromContext_WithoutPrincipal_ReturnsError(t *testing.T) {
	if _, err := PrincipalFromContext(context.Background()); err == nil {
		t.Error("expected error for context without principal")
	}
	if _, err := UserIDFromContext(context.Background()); err == nil {
		t.Error("expected error for context without principal")
	}
}

func TestContextWithPrincipal_RoundTrip(t *testing.T) {
	user := &model.User{ID: "user-777", Name: "Bob"}
	ctx := ContextWithPrincipal(context.Background(), user)

	got, err := PrincipalFromContext(ctx)
	if err != nil {
		t.Fatalf("PrincipalFromContext() error = %v", err)
	}
	if got.ID != "user-777" {
		t.Errorf("principal ID = %q, want %q", got.ID, "user-777")
	}
}
