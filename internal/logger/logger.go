// Package logger は構造化ログのセットアップを提供する。
package logger

import (
	"io"
	"log/slog"
	"os"
)

// Setup はJSON構造化ログ出力のslog.Loggerを生成して返す。
// devModeが真の場合は人間が読みやすいテキスト形式・デバッグレベルで出力する。
// 本番ではエラー詳細はログにのみ残り、HTTPレスポンスには含めない。
func Setup(w io.Writer, devMode bool) *slog.Logger {
	if devMode {
		handler := slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
		return slog.New(handler)
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	return slog.New(handler)
}

// SetupDefault はログ出力をグローバルロガーとして設定する。
// writerがnilの場合はos.Stdoutに出力する。
func SetupDefault(w io.Writer, devMode bool) {
	if w == nil {
		w = os.Stdout
	}
	logger := Setup(w, devMode)
	slog.SetDefault(logger)
}
