// Package sessionstore はセッションデータのTTL付きキーバリュー永続化を提供する。
//
// バックエンドはRedis（本番想定）とインプロセステーブル（非永続デプロイ向け）の
// 2種類。キーはセッショントークンで、値はシリアライズ済みのセッションペイロード。
// 失効はストア側のTTLに委ねる。
package sessionstore

import (
	"context"
	"time"
)

// Store はセッションストアのインターフェース。
// トークンごとに独立したキーを使うため、ストア側でのクロスキーの
// ロックや順序保証は不要。
type Store interface {
	// Get はキーに対応する値を返す。キーが存在しないか期限切れの場合は
	// ok=falseを返す（エラーではない）。
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set は値をTTL付きで保存する。既存キーは上書きされ、TTLはリセットされる。
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete はキーを削除する。キーが存在しない場合もエラーにしない（冪等）。
	Delete(ctx context.Context, key string) error

	// Close はストアへの接続を閉じる。
	Close() error
}
