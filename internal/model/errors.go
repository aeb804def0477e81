// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// ログイン・セッション処理のエラー分類。
// errors.Isで判別できるよう、包む側はfmt.Errorfの%wで連結すること。
var (
	// ErrValidation は必須フィールド欠落などの入力検証エラー。
	// 呼び出し元にそのまま返し、リトライしない。
	ErrValidation = errors.New("validation error")

	// ErrNotFound はidentityが参照するユーザーが存在しない場合（宙吊りリンク）。
	// データ整合性の異常であり、重複ユーザーを作らずに認証失敗として表面化させる。
	ErrNotFound = errors.New("not found")

	// ErrDuplicateIdentity は(provider, provider_user_id)のUNIQUE制約違反。
	// 同時初回ログインで発生しうる正常系のシグナルで、既存リンクの
	// 再読込にフォールバックする。ユーザーには露出しない。
	ErrDuplicateIdentity = errors.New("duplicate identity")
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUserNotFound     = "USER_NOT_FOUND"
	ErrCodeInvalidProfile   = "INVALID_PROFILE"
	ErrCodeDanglingLink     = "DANGLING_IDENTITY_LINK"
	ErrCodeAuthFailed       = "AUTH_FAILED"
	ErrCodeSessionInvalid   = "SESSION_INVALID"
	ErrCodeStoreUnavailable = "STORE_UNAVAILABLE"
)

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewInvalidProfileError はIdPから受け取ったプロフィールが不正な場合のエラーを生成する。
func NewInvalidProfileError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidProfile,
		Message:  fmt.Sprintf("IdPから受け取ったプロフィールが不正です: %s", reason),
		Category: "validation",
		Action:   "IdP側のアカウント設定を確認してから再度ログインしてください。",
	}
}

// NewSessionInvalidError はセッションが無効・期限切れの場合のエラーを生成する。
func NewSessionInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionInvalid,
		Message:  "セッションが無効です。",
		Category: "auth",
		Action:   "再度ログインしてください。",
	}
}

// NewStoreUnavailableError はストアへの接続障害を表すエラーを生成する。
func NewStoreUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeStoreUnavailable,
		Message:  "データストアに接続できません。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewAuthFailedError はログイン処理の失敗を表すエラーを生成する。
// 内部の詳細はログにのみ残し、ユーザーには一般的なメッセージを返す。
func NewAuthFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthFailed,
		Message:  "ログインに失敗しました。",
		Category: "auth",
		Action:   "しばらく待ってから再度ログインしてください。",
	}
}
