package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/authman/internal/security"
)

// allowedAvatarMimeTypes はアバターとして保存を許可する画像形式。
var allowedAvatarMimeTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// AvatarFetcher はIdPが申告するプロフィール画像URLから画像を取得する。
// URLは外部由来の信頼できない入力であり、SSRF防止付きクライアントで取得し、
// サイズと形式を制限する。
type AvatarFetcher struct {
	guard   security.SSRFGuardService
	timeout time.Duration
	maxSize int64
}

// NewAvatarFetcher はAvatarFetcherを生成する。
func NewAvatarFetcher(guard security.SSRFGuardService, timeout time.Duration, maxSize int64) *AvatarFetcher {
	return &AvatarFetcher{
		guard:   guard,
		timeout: timeout,
		maxSize: maxSize,
	}
}

// Fetch は画像を取得し、データとMIMEタイプを返す。
// 許可されない形式やサイズ超過はエラーにする。
func (f *AvatarFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	if err := f.guard.ValidateURL(rawURL); err != nil {
		return nil, "", fmt.Errorf("avatar URL rejected: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create avatar request: %w", err)
	}

	client := f.guard.NewSafeClient(f.timeout)
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("avatar request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("avatar fetch failed with status %d", resp.StatusCode)
	}

	mimeType := resp.Header.Get("Content-Type")
	if idx := strings.Index(mimeType, ";"); idx >= 0 {
		mimeType = strings.TrimSpace(mimeType[:idx])
	}
	if !allowedAvatarMimeTypes[mimeType] {
		return nil, "", fmt.Errorf("unsupported avatar content type %q", mimeType)
	}

	// maxSizeを1バイトでも超えたら読み捨てて失敗させる
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read avatar body: %w", err)
	}
	if int64(len(data)) > f.maxSize {
		return nil, "", fmt.Errorf("avatar exceeds maximum size of %d bytes", f.maxSize)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("empty avatar body")
	}

	return data, mimeType, nil
}
