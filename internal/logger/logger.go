// Package logger 构造进程使用的 slog 日志器
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New 按级别字符串创建文本日志器，并设为 slog 默认日志器
func New(level string) *slog.Logger {
	l := NewWithWriter(os.Stdout, level)
	slog.SetDefault(l)
	return l
}

// NewWithWriter 与 New 相同，但写入指定的 writer，不修改默认日志器
func NewWithWriter(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: parseLevel(level)}))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
