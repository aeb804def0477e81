// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/authman/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
	// identitiesの(provider, provider_user_id)のUNIQUE制約に違反した場合は
	// model.ErrDuplicateIdentityを返す。呼び出し元は既存リンクを再読込して
	// そのユーザーを返すこと（同時初回ログイン対策）。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// UpdateAvatar はユーザーのアバター画像を更新する。
	UpdateAvatar(ctx context.Context, userID string, data []byte, mimeType string) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するidentitiesはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)
}
