// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ProfileSanitizerService はIdPから受け取った表示名をサニタイズし、
// マークアップ混入によるXSSリスクからユーザーを保護する。
// bluemondayのStrictPolicyにより、すべてのHTMLタグを除去する。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// maxDisplayNameLength は保存する表示名の最大長。
const maxDisplayNameLength = 200

// ProfileSanitizerService はIdPプロフィールのサニタイズ機能のインターフェース。
// ユーザー作成前に表示名へ適用する。
type ProfileSanitizerService interface {
	// SanitizeDisplayName は表示名からHTMLタグをすべて除去し、
	// 前後の空白を取り除いた文字列を返す。
	// 長すぎる名前は最大長で切り詰める。
	// 同一入力に対して常に同一出力を返す（冪等）。
	SanitizeDisplayName(name string) string
}

// profileSanitizer はProfileSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type profileSanitizer struct {
	policy *bluemonday.Policy
}

// NewProfileSanitizer はProfileSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicyはタグを一切許可しないため、表示名は常にプレーンテキストになる。
func NewProfileSanitizer() *profileSanitizer {
	return &profileSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// SanitizeDisplayName は表示名からHTMLタグをすべて除去する。
func (s *profileSanitizer) SanitizeDisplayName(name string) string {
	cleaned := strings.TrimSpace(s.policy.Sanitize(name))
	if len(cleaned) > maxDisplayNameLength {
		cleaned = cleaned[:maxDisplayNameLength]
	}
	return cleaned
}

// compile-time interface check
var _ ProfileSanitizerService = (*profileSanitizer)(nil)
