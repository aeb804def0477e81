package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/authman/internal/middleware"
	"github.com/hitoshi/authman/internal/model"
)

// --- モック定義 ---

type mockAuthService struct {
	getLoginURLFn      func(state string) string
	handleCallbackFn   func(ctx context.Context, code string) (*model.Session, error)
	terminateSessionFn func(ctx context.Context, token string) error
}

func (m *mockAuthService) GetLoginURL(state string) string {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(state)
	}
	return ""
}

func (m *mockAuthService) HandleCallback(ctx context.Context, code string) (*model.Session, error) {
	if m.handleCallbackFn != nil {
		return m.handleCallbackFn(ctx, code)
	}
	return nil, nil
}

func (m *mockAuthService) TerminateSession(ctx context.Context, token string) error {
	if m.terminateSessionFn != nil {
		return m.terminateSessionFn(ctx, token)
	}
	return nil
}

var _ AuthServiceInterface = (*mockAuthService)(nil)

func testAuthConfig() AuthHandlerConfig {
	return AuthHandlerConfig{
		BaseURL:       "http://localhost:3000",
		CookieDomain:  "",
		CookieSecure:  false,
		SessionMaxAge: 86400,
	}
}

// sessionCookie はレスポンスから指定した名前のCookieを探すヘルパー。
func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// --- テスト ---

func TestAuthHandler_Login_RedirectsToOAuthURLWithStateCookie(t *testing.T) {
	svc := &mockAuthService{
		getLoginURLFn: func(state string) string {
			return "https://accounts.google.com/o/oauth2/auth?state=" + state
		},
	}
	h := NewAuthHandler(svc, testAuthConfig())

	req := httptest.NewRequest(http.MethodGet, "/login/federated/google", nil)
	w := httptest.NewRecorder()

	h.Login(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusTemporaryRedirect)
	}

	location := resp.Header.Get("Location")
	if !strings.Contains(location, "accounts.google.com") {
		t.Errorf("Location = %q, should contain google oauth URL", location)
	}

	// stateクッキーが設定され、リダイレクトURLのstateと一致すること
	stateCookie := findCookie(resp, "oauth_state")
	if stateCookie == nil || stateCookie.Value == "" {
		t.Fatal("expected oauth_state cookie to be set")
	}
	if !stateCookie.HttpOnly {
		t.Error("oauth_state cookie must be HttpOnly")
	}
	if !strings.Contains(location, "state="+stateCookie.Value) {
		t.Errorf("redirect URL should carry state %q: %q", stateCookie.Value, location)
	}
}

func TestAuthHandler_Callback_Success_SetsSessionCookieAndRedirects(t *testing.T) {
	svc := &mockAuthService{
		handleCallbackFn: func(ctx context.Context, code string) (*model.Session, error) {
			if code != "test-code" {
				t.Errorf("code = %q, want %q", code, "test-code")
			}
			return &model.Session{
				ID:        "session-id-abc",
				UserID:    "user-id-123",
				ExpiresAt: time.Now().Add(24 * time.Hour),
			}, nil
		},
	}
	h := NewAuthHandler(svc, testAuthConfig())

	req := httptest.NewRequest(http.MethodGet, "/oauth2/redirect/google?code=test-code&state=test-state", nil)
	req.AddCookie(&http.Cookie{Name: "oauth_state", Value: "test-state"})
	w := httptest.NewRecorder()

	h.Callback(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusTemporaryRedirect)
	}
	if location := resp.Header.Get("Location"); location != "http://localhost:3000" {
		t.Errorf("Location = %q, want %q", location, "http://localhost:3000")
	}

	sessionCookie := findCookie(resp, middleware.SessionCookieName)
	if sessionCookie == nil {
		t.Fatal("expected session cookie to be set")
	}
	if sessionCookie.Value != "session-id-abc" {
		t.Errorf("session cookie value = %q, want %q", sessionCookie.Value, "session-id-abc")
	}
	if !sessionCookie.HttpOnly {
		t.Error("session cookie must be HttpOnly")
	}
	if sessionCookie.SameSite != http.SameSiteLaxMode {
		t.Errorf("session cookie SameSite = %v, want Lax", sessionCookie.SameSite)
	}
	if sessionCookie.MaxAge != 86400 {
		t.Errorf("session cookie MaxAge = %d, want 86400", sessionCookie.MaxAge)
	}

	// stateクッキーは失効されること
	stateCookie := findCookie(resp, "oauth_state")
	if stateCookie == nil || stateCookie.MaxAge != -1 {
		t.Error("oauth_state cookie should be expired after callback")
	}
}

func TestAuthHandler_Callback_SecureCookieUnderHTTPS(t *testing.T) {
	svc := &mockAuthService{
		handleCallbackFn: func(ctx context.Context, code string) (*model.Session, error) {
			return &model.Session{ID: "session-secure", UserID: "user-1"}, nil
		},
	}
	config := testAuthConfig()
	config.BaseURL = "https://app.example.com"
	config.CookieSecure = true
	h := NewAuthHandler(svc, config)

	req := httptest.NewRequest(http.MethodGet, "/oauth2/redirect/google?code=c&state=s", nil)
	req.AddCookie(&http.Cookie{Name: "oauth_state", Value: "s"})
	w := httptest.NewRecorder()

	h.Callback(w, req)

	sessionCookie := findCookie(w.Result(), middleware.SessionCookieName)
	if sessionCookie == nil {
		t.Fatal("expected session cookie")
	}
	if !sessionCookie.Secure {
		t.Error("session cookie must be Secure under HTTPS deployment")
	}
}

func TestAuthHandler_Callback_StateMismatch_RedirectsToLogin(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{
		handleCallbackFn: func(ctx context.Context, code string) (*model.Session, error) {
			t.Error("HandleCallback should not be called on state mismatch")
			return nil, nil
		},
	}, testAuthConfig())

	req := httptest.NewRequest(http.MethodGet, "/oauth2/redirect/google?code=c&state=attacker-state", nil)
	req.AddCookie(&http.Cookie{Name: "oauth_state", Value: "real-state"})
	w := httptest.NewRecorder()

	h.Callback(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusTemporaryRedirect)
	}
	if location := resp.Header.Get("Location"); location != "/login" {
		t.Errorf("Location = %q, want /login", location)
	}
}

func TestAuthHandler_Callback_MissingCode_RedirectsToLogin(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, testAuthConfig())

	req := httptest.NewRequest(http.MethodGet, "/oauth2/redirect/google?state=s", nil)
	req.AddCookie(&http.Cookie{Name: "oauth_state", Value: "s"})
	w := httptest.NewRecorder()

	h.Callback(w, req)

	resp := w.Result()
	if location := resp.Header.Get("Location"); location != "/login" {
		t.Errorf("Location = %q, want /login", location)
	}
}

func TestAuthHandler_Callback_ServiceError_RedirectsToLoginWithoutCookie(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{
		handleCallbackFn: func(ctx context.Context, code string) (*model.Session, error) {
			return nil, errors.New("exchange failed")
		},
	}, testAuthConfig())

	req := httptest.NewRequest(http.MethodGet, "/oauth2/redirect/google?code=bad&state=s", nil)
	req.AddCookie(&http.Cookie{Name: "oauth_state", Value: "s"})
	w := httptest.NewRecorder()

	h.Callback(w, req)

	resp := w.Result()
	if location := resp.Header.Get("Location"); location != "/login" {
		t.Errorf("Location = %q, want /login", location)
	}
	if c := findCookie(resp, middleware.SessionCookieName); c != nil {
		t.Error("session cookie must not be set on failed login")
	}
}

func TestAuthHandler_Logout_TerminatesSessionAndClearsCookie(t *testing.T) {
	var terminated string
	h := NewAuthHandler(&mockAuthService{
		terminateSessionFn: func(ctx context.Context, token string) error {
			terminated = token
			return nil
		},
	}, testAuthConfig())

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "session-to-end"})
	w := httptest.NewRecorder()

	h.Logout(w, req)

	resp := w.Result()
	if terminated != "session-to-end" {
		t.Errorf("terminated token = %q, want %q", terminated, "session-to-end")
	}
	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusTemporaryRedirect)
	}

	cleared := findCookie(resp, middleware.SessionCookieName)
	if cleared == nil || cleared.MaxAge != -1 {
		t.Error("session cookie should be expired on logout")
	}
}

func TestAuthHandler_Logout_WithoutSessionCookie_StillRedirects(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{
		terminateSessionFn: func(ctx context.Context, token string) error {
			t.Error("TerminateSession should not be called without a cookie")
			return nil
		},
	}, testAuthConfig())

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	w := httptest.NewRecorder()

	h.Logout(w, req)

	if w.Result().StatusCode != http.StatusTemporaryRedirect {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusTemporaryRedirect)
	}
}

func TestAuthHandler_Logout_TerminationErrorStillClearsCookie(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{
		terminateSessionFn: func(ctx context.Context, token string) error {
			return errors.New("store unreachable")
		},
	}, testAuthConfig())

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "some-session"})
	w := httptest.NewRecorder()

	h.Logout(w, req)

	cleared := findCookie(w.Result(), middleware.SessionCookieName)
	if cleared == nil || cleared.MaxAge != -1 {
		t.Error("session cookie should be cleared even when termination fails")
	}
}

func TestAuthHandler_Me_ReturnsPrincipalJSON(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, testAuthConfig())

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	ctx := middleware.ContextWithPrincipal(req.Context(), &model.User{
		ID:    "user-1",
		Email: "alice@example.com",
		Name:  "Alice",
	})
	w := httptest.NewRecorder()

	h.Me(w, req.WithContext(ctx))

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["id"] != "user-1" {
		t.Errorf("id = %v, want user-1", body["id"])
	}
	if body["name"] != "Alice" {
		t.Errorf("name = %v, want Alice", body["name"])
	}
	if body["has_avatar"] != false {
		t.Errorf("has_avatar = %v, want false", body["has_avatar"])
	}
}

func TestAuthHandler_Me_WithoutPrincipal_Unauthorized(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, testAuthConfig())

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	w := httptest.NewRecorder()

	h.Me(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Result().StatusCode)
	}
}

func TestAuthHandler_LoginPage_ListsProviders(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, testAuthConfig())

	req := httptest.NewRequest(http.MethodGet, "/login", nil)
	w := httptest.NewRecorder()

	h.LoginPage(w, req)

	var body struct {
		Providers []struct {
			Name     string `json:"name"`
			LoginURL string `json:"login_url"`
		} `json:"providers"`
	}
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if len(body.Providers) != 1 {
		t.Fatalf("providers = %d, want 1", len(body.Providers))
	}
	if body.Providers[0].Name != "google" {
		t.Errorf("provider name = %q, want google", body.Providers[0].Name)
	}
	if body.Providers[0].LoginURL != "/login/federated/google" {
		t.Errorf("login_url = %q, want /login/federated/google", body.Providers[0].LoginURL)
	}
}
