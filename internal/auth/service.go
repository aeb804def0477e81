// Package auth はフェデレーションログインのプロトコルとセッション管理を提供する。
//
// 外部IdPが検証済みの(issuer, subject, displayName)を提示し、本パッケージが
// ローカルユーザーへの解決とセッションの発行・解決・破棄を行う。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/authman/internal/metrics"
	"github.com/hitoshi/authman/internal/model"
	"github.com/hitoshi/authman/internal/repository"
	"github.com/hitoshi/authman/internal/security"
	"github.com/hitoshi/authman/internal/sessionstore"
)

// OAuthUserInfo はOAuthプロバイダーから取得した検証済みユーザー情報を表す。
// IssuerとProviderUserIDの組がユーザーの安定した識別子になる。
type OAuthUserInfo struct {
	Issuer         string // IdPのissuer識別子（IDトークンのiss）
	ProviderUserID string // IdPスコープの安定識別子（IDトークンのsub）
	Email          string
	Name           string
	PictureURL     string
	Provider       string // "google", "github" 等
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
// 将来的に複数IdP（Google, GitHub等）に対応するための抽象化。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、検証済みユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// Service はフェデレーションログインに関するビジネスロジックを提供する。
type Service struct {
	oauth     OAuthProvider
	userRepo  repository.UserRepository
	identRepo repository.IdentityRepository
	sessions  sessionstore.Store
	sanitizer security.ProfileSanitizerService
	avatars   *AvatarFetcher
	collector metrics.MetricsCollector
	config    ServiceConfig
}

// NewService はServiceを生成する。
// avatarsはnil可（アバター取得を行わない）。collectorがnilの場合は計測しない。
func NewService(
	oauth OAuthProvider,
	userRepo repository.UserRepository,
	identRepo repository.IdentityRepository,
	sessions sessionstore.Store,
	sanitizer security.ProfileSanitizerService,
	avatars *AvatarFetcher,
	collector metrics.MetricsCollector,
	config ServiceConfig,
) *Service {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Service{
		oauth:     oauth,
		userRepo:  userRepo,
		identRepo: identRepo,
		sessions:  sessions,
		sanitizer: sanitizer,
		avatars:   avatars,
		collector: collector,
		config:    config,
	}
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// ResolveFederatedIdentity はIdPが主張した(issuer, subject)をローカルユーザーに解決する。
// 既存のリンクがあればそのユーザーを返し、なければユーザーとリンクを新規作成する。
// 同一(issuer, subject)に対して作成されるユーザーとリンクは高々1つ。
//
// 同時初回ログイン対策: 作成時にUNIQUE制約違反（model.ErrDuplicateIdentity）を
// 検出した場合は既存リンクを再読込してそのユーザーを返す。リクエストを失敗させない。
func (s *Service) ResolveFederatedIdentity(ctx context.Context, issuer, subject, displayName string) (*model.User, error) {
	return s.resolveFederatedUser(ctx, issuer, subject, displayName, "")
}

// resolveFederatedUser はResolveFederatedIdentityの実体。
// OAuthコールバック経由の場合はemailも保存する。
func (s *Service) resolveFederatedUser(ctx context.Context, issuer, subject, displayName, email string) (*model.User, error) {
	if issuer == "" {
		return nil, fmt.Errorf("issuer is required: %w", model.ErrValidation)
	}
	if subject == "" {
		return nil, fmt.Errorf("subject is required: %w", model.ErrValidation)
	}

	// 1. 既存の資格情報リンクを(issuer, subject)で検索
	identity, err := s.identRepo.FindByProviderAndProviderUserID(ctx, issuer, subject)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}

	if identity != nil {
		return s.userForIdentity(ctx, identity)
	}

	// 2. 初回ログイン: 表示名を検証・サニタイズしてユーザーとリンクを同時作成
	name := s.sanitizer.SanitizeDisplayName(displayName)
	if name == "" {
		return nil, fmt.Errorf("display name is required: %w", model.ErrValidation)
	}

	now := time.Now()
	newUser := &model.User{
		ID:        uuid.New().String(),
		Email:     email,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	newIdentity := &model.Identity{
		ID:             uuid.New().String(),
		UserID:         newUser.ID,
		Provider:       issuer,
		ProviderUserID: subject,
		CreatedAt:      now,
	}

	err = s.userRepo.CreateWithIdentity(ctx, newUser, newIdentity)
	if errors.Is(err, model.ErrDuplicateIdentity) {
		// 同時初回ログインで他のリクエストが先に作成した。既存リンクへフォールバック。
		s.collector.RecordDuplicateLinkRecovered()
		slog.Info("concurrent first login detected, falling back to existing link",
			slog.String("issuer", issuer),
		)

		identity, err := s.identRepo.FindByProviderAndProviderUserID(ctx, issuer, subject)
		if err != nil {
			return nil, fmt.Errorf("failed to re-read identity after duplicate: %w", err)
		}
		if identity == nil {
			return nil, fmt.Errorf("identity vanished after duplicate violation: %w", model.ErrNotFound)
		}
		return s.userForIdentity(ctx, identity)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create user and identity: %w", err)
	}

	s.collector.RecordUserCreated()
	slog.Info("new user created",
		slog.String("user_id", newUser.ID),
		slog.String("issuer", issuer),
	)
	return newUser, nil
}

// userForIdentity はリンクが参照するユーザーを取得する。
// ユーザーが存在しない場合（宙吊りリンク）はErrNotFoundを返し、
// 重複ユーザーを作らずに認証失敗として表面化させる。
func (s *Service) userForIdentity(ctx context.Context, identity *model.Identity) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, identity.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		slog.Warn("identity references missing user",
			slog.String("identity_id", identity.ID),
			slog.String("user_id", identity.UserID),
		)
		return nil, fmt.Errorf("user for identity %s not found: %w", identity.ID, model.ErrNotFound)
	}
	return user, nil
}

// EstablishSession はユーザーに対して新しいセッションを発行する。
// セッションストアにはユーザーIDのみを保持し、可変なユーザー情報は
// 保存しない（解決時に毎回再取得する）。
func (s *Service) EstablishSession(ctx context.Context, user *model.User) (*model.Session, error) {
	token, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	ttl := time.Duration(s.config.SessionMaxAge) * time.Second
	now := time.Now()
	session := &model.Session{
		ID:        token,
		UserID:    user.ID,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize session: %w", err)
	}

	if err := s.sessions.Set(ctx, token, string(payload), ttl); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// ResolvePrincipal はセッショントークンからログイン中のユーザーを再構成する。
// トークンが無い・期限切れの場合は(nil, nil)を返す。匿名はエラーではなく正常な状態。
// セッションが参照するユーザーが削除済みの場合はセッションを破棄して匿名を返す（自己修復）。
func (s *Service) ResolvePrincipal(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, nil
	}

	value, ok, err := s.sessions.Get(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	if !ok {
		s.collector.RecordSessionResolution(metrics.SessionResolutionMiss)
		return nil, nil
	}

	var session model.Session
	if err := json.Unmarshal([]byte(value), &session); err != nil || session.UserID == "" {
		// 解釈できないペイロードは破棄して匿名扱いにする
		slog.Warn("discarding malformed session payload")
		_ = s.sessions.Delete(ctx, token)
		s.collector.RecordSessionResolution(metrics.SessionResolutionSelfHeal)
		return nil, nil
	}

	// ストアのTTLが主たる失効手段だが、読み取り時にも二重チェックする
	if session.Expired(time.Now()) {
		_ = s.sessions.Delete(ctx, token)
		s.collector.RecordSessionResolution(metrics.SessionResolutionMiss)
		return nil, nil
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		// 退会等でユーザーが消えた宙吊りセッション。破棄して匿名を返す。
		slog.Info("session references deleted user, invalidating",
			slog.String("user_id", session.UserID),
		)
		if err := s.sessions.Delete(ctx, token); err != nil {
			return nil, fmt.Errorf("failed to invalidate dangling session: %w", err)
		}
		s.collector.RecordSessionResolution(metrics.SessionResolutionSelfHeal)
		return nil, nil
	}

	s.collector.RecordSessionResolution(metrics.SessionResolutionHit)
	return user, nil
}

// TerminateSession はセッションを破棄する。
// トークンが既に無効・期限切れでも成功する（冪等）。
func (s *Service) TerminateSession(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.sessions.Delete(ctx, token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// HandleCallback はOAuthコールバックを処理し、セッションを発行する。
// 未登録ユーザーの場合はusersレコードとidentitiesレコードを同時に自動作成する。
// 登録済みユーザーの場合はidentitiesテーブルで既存ユーザーを特定しログインする。
func (s *Service) HandleCallback(ctx context.Context, code string) (*model.Session, error) {
	userInfo, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		s.collector.RecordLoginFailure("oauth_exchange")
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	issuer := userInfo.Issuer
	if issuer == "" {
		issuer = userInfo.Provider
	}

	user, err := s.resolveFederatedUser(ctx, issuer, userInfo.ProviderUserID, userInfo.Name, userInfo.Email)
	if err != nil {
		s.collector.RecordLoginFailure(loginFailureReason(err))
		return nil, fmt.Errorf("failed to resolve federated identity: %w", err)
	}

	// アバター取得はベストエフォート。失敗してもログインは続行する。
	if s.avatars != nil && userInfo.PictureURL != "" && len(user.AvatarData) == 0 {
		s.fetchAvatar(ctx, user.ID, userInfo.PictureURL)
	}

	session, err := s.EstablishSession(ctx, user)
	if err != nil {
		s.collector.RecordLoginFailure("session_store")
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.collector.RecordLoginSuccess()
	slog.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("provider", userInfo.Provider),
	)
	return session, nil
}

// fetchAvatar はIdPが申告したプロフィール画像を取得して保存する。
// URLは外部由来の入力であり、SSRF防止付きクライアントで取得する。
func (s *Service) fetchAvatar(ctx context.Context, userID, pictureURL string) {
	data, mimeType, err := s.avatars.Fetch(ctx, pictureURL)
	if err != nil {
		slog.Warn("failed to fetch avatar",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := s.userRepo.UpdateAvatar(ctx, userID, data, mimeType); err != nil {
		slog.Warn("failed to save avatar",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}

// loginFailureReason はエラーをメトリクス用の失敗理由ラベルに分類する。
func loginFailureReason(err error) string {
	switch {
	case errors.Is(err, model.ErrValidation):
		return "validation"
	case errors.Is(err, model.ErrNotFound):
		return "dangling_link"
	default:
		return "store"
	}
}

// generateSessionID は暗号的に安全な256ビットのセッショントークンを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
