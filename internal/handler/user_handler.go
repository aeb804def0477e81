package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hitoshi/authman/internal/middleware"
	"github.com/hitoshi/authman/internal/model"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	// Withdraw はユーザーの退会処理を実行する。
	// userとidentitiesを削除する。残存セッションはResolvePrincipalの
	// 自己修復で無効化される。
	Withdraw(ctx context.Context, userID string) error
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
	devMode bool
}

// NewUserHandler はUserHandlerを生成する。
// devModeが真の場合のみ、予期しないエラーの詳細をレスポンスに含める。
func NewUserHandler(service UserServiceInterface, devMode bool) *UserHandler {
	return &UserHandler{
		service: service,
		devMode: devMode,
	}
}

// Withdraw はユーザーの退会処理を実行する。
// DELETE /api/users/me
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewSessionInvalidError())
		return
	}

	if err := h.service.Withdraw(r.Context(), userID); err != nil {
		h.handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Avatar はログインユーザーのアバター画像を返す。
// GET /api/users/me/avatar
func (h *UserHandler) Avatar(w http.ResponseWriter, r *http.Request) {
	principal, err := middleware.PrincipalFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewSessionInvalidError())
		return
	}

	if len(principal.AvatarData) == 0 {
		middleware.WriteErrorResponse(w, http.StatusNotFound, &model.APIError{
			Code:     "AVATAR_NOT_FOUND",
			Message:  "アバター画像が登録されていません。",
			Category: "validation",
			Action:   "IdPのプロフィール画像を設定して再度ログインしてください。",
		})
		return
	}

	w.Header().Set("Content-Type", principal.AvatarMime)
	w.Header().Set("Content-Length", strconv.Itoa(len(principal.AvatarData)))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Write(principal.AvatarData)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
// APIError以外のエラーは内部サーバーエラーとして扱い、詳細は開発モードでのみ露出する。
func (h *UserHandler) handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerErrorWithDetail(w, err, h.devMode)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUserNotFound:
		return http.StatusNotFound
	case model.ErrCodeInvalidProfile:
		return http.StatusBadRequest
	case model.ErrCodeSessionInvalid:
		return http.StatusUnauthorized
	case model.ErrCodeAuthFailed, model.ErrCodeDanglingLink:
		return http.StatusUnauthorized
	case model.ErrCodeStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
