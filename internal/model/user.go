// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// 外部IdPでの初回ログイン時に1回だけ作成される。
type User struct {
	ID         string
	Email      string
	Name       string
	AvatarData []byte
	AvatarMime string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Identity は外部IdPとの紐付け情報（フェデレーション資格情報）を表す。
// (Provider, ProviderUserID) の組はDBのUNIQUE制約により高々1ユーザーに対応する。
// 将来的に複数のIdP（Google, GitHub等）に対応可能な構造。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// Session はユーザーのログインセッションを表す。
// セッションストアにはUserIDのみを保持し、ユーザー情報は
// リクエストごとにIdentityストアから再取得する。
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Expired はセッションが期限切れかどうかを返す。
// ストア側のTTLが主たる失効手段だが、読み取り時の二重チェックにも使う。
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
