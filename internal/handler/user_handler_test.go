package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/authman/internal/middleware"
	"github.com/hitoshi/authman/internal/model"
)

type mockUserService struct {
	withdrawFn func(ctx context.Context, userID string) error
}

func (m *mockUserService) Withdraw(ctx context.Context, userID string) error {
	if m.withdrawFn != nil {
		return m.withdrawFn(ctx, userID)
	}
	return nil
}

var _ UserServiceInterface = (*mockUserService)(nil)

func authenticatedRequest(method, target string, user *model.User) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	return req.WithContext(middleware.ContextWithPrincipal(req.Context(), user))
}

func TestUserHandler_Withdraw_Success(t *testing.T) {
	var withdrawnID string
	h := NewUserHandler(&mockUserService{
		withdrawFn: func(ctx context.Context, userID string) error {
			withdrawnID = userID
			return nil
		},
	}, false)

	req := authenticatedRequest(http.MethodDelete, "/api/users/me", &model.User{ID: "user-1"})
	w := httptest.NewRecorder()

	h.Withdraw(w, req)

	if w.Result().StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusNoContent)
	}
	if withdrawnID != "user-1" {
		t.Errorf("withdrawn user ID = %q, want user-1", withdrawnID)
	}
}

func TestUserHandler_Withdraw_WithoutPrincipal_Unauthorized(t *testing.T) {
	h := NewUserHandler(&mockUserService{
		withdrawFn: func(ctx context.Context, userID string) error {
			t.Error("Withdraw should not be called without a principal")
			return nil
		},
	}, false)

	req := httptest.NewRequest(http.MethodDelete, "/api/users/me", nil)
	w := httptest.NewRecorder()

	h.Withdraw(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Result().StatusCode)
	}
}

func TestUserHandler_Withdraw_UserNotFound(t *testing.T) {
	h := NewUserHandler(&mockUserService{
		withdrawFn: func(ctx context.Context, userID string) error {
			return model.NewUserNotFoundError()
		},
	}, false)

	req := authenticatedRequest(http.MethodDelete, "/api/users/me", &model.User{ID: "gone"})
	w := httptest.NewRecorder()

	h.Withdraw(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}

	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Code != model.ErrCodeUserNotFound {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeUserNotFound)
	}
}

func TestUserHandler_Withdraw_UnexpectedError(t *testing.T) {
	h := NewUserHandler(&mockUserService{
		withdrawFn: func(ctx context.Context, userID string) error {
			return errors.New("db connection reset")
		},
	}, false)

	req := authenticatedRequest(http.MethodDelete, "/api/users/me", &model.User{ID: "user-1"})
	w := httptest.NewRecorder()

	h.Withdraw(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}

	// 本番モードでは内部エラーの詳細を露出しない
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if strings.Contains(body.Message, "db connection reset") {
		t.Error("production response must not leak internal error detail")
	}
}

func TestUserHandler_Withdraw_UnexpectedError_DevModeIncludesDetail(t *testing.T) {
	h := NewUserHandler(&mockUserService{
		withdrawFn: func(ctx context.Context, userID string) error {
			return errors.New("db connection reset")
		},
	}, true)

	req := authenticatedRequest(http.MethodDelete, "/api/users/me", &model.User{ID: "user-1"})
	w := httptest.NewRecorder()

	h.Withdraw(w, req)

	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if !strings.Contains(body.Message, "db connection reset") {
		t.Errorf("dev mode response should include error detail, got %q", body.Message)
	}
}

func TestUserHandler_Avatar_ServesImage(t *testing.T) {
	avatarData := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10}
	h := NewUserHandler(&mockUserService{}, false)

	req := authenticatedRequest(http.MethodGet, "/api/users/me/avatar", &model.User{
		ID:         "user-1",
		AvatarData: avatarData,
		AvatarMime: "image/jpeg",
	})
	w := httptest.NewRecorder()

	h.Avatar(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Content-Type = %q, want image/jpeg", ct)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "private, max-age=3600" {
		t.Errorf("Cache-Control = %q", cc)
	}
	if !bytes.Equal(w.Body.Bytes(), avatarData) {
		t.Error("response body should be the avatar bytes")
	}
}

func TestUserHandler_Avatar_NotRegistered(t *testing.T) {
	h := NewUserHandler(&mockUserService{}, false)

	req := authenticatedRequest(http.MethodGet, "/api/users/me/avatar", &model.User{ID: "user-1"})
	w := httptest.NewRecorder()

	h.Avatar(w, req)

	if w.Result().StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Result().StatusCode)
	}
}

func TestMapAPIErrorToHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		code string
		want int
	}{
		{"user not found", model.ErrCodeUserNotFound, http.StatusNotFound},
		{"invalid profile", model.ErrCodeInvalidProfile, http.StatusBadRequest},
		{"session invalid", model.ErrCodeSessionInvalid, http.StatusUnauthorized},
		{"auth failed", model.ErrCodeAuthFailed, http.StatusUnauthorized},
		{"dangling link", model.ErrCodeDanglingLink, http.StatusUnauthorized},
		{"store unavailable", model.ErrCodeStoreUnavailable, http.StatusServiceUnavailable},
		{"unknown code", "SOMETHING_ELSE", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapAPIErrorToHTTPStatus(&model.APIError{Code: tt.code})
			if got != tt.want {
				t.Errorf("mapAPIErrorToHTTPStatus(%q) = %d, want %d", tt.code, got, tt.want)
			}
		})
	}
}
