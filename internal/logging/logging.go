// Package logging 构造 slog logger，并从 context 中提取统一的结构化字段。
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// 统一的结构化字段名。
const (
	FieldRunID     = "run_id"
	FieldProvider  = "provider"
	FieldStage     = "stage"
	FieldErrorKind = "error_kind"
)

// Options 描述 logger 的构造参数。
type Options struct {
	// Level: debug|info|warn|error，未知值按 info 处理。
	Level string
	// Format: console|json，空值为 console。
	Format string
	// Writer 为 nil 时写 stderr（stdout 留给 JSON 报告）。
	Writer io.Writer
}

// New 按 Options 构造 logger。
func New(opts Options) (*slog.Logger, error) {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	level := ParseLevel(opts.Level)

	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", "console", "text":
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:       level,
			AddSource:   level <= slog.LevelDebug,
			ReplaceAttr: replaceJSONAttr,
		})), nil
	default:
		return nil, fmt.Errorf("log format：不支持的值 %q", opts.Format)
	}
}

// NewNop 返回丢弃一切输出的 logger（测试与未配置时使用）。
func NewNop() *slog.Logger {
	// slog.DiscardHandler 需要 Go 1.24；此处用等价写法：丢弃输出且任何级别均不启用。
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)}))
}

// ParseLevel 把文本级别解析为 slog.Level。
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func replaceJSONAttr(_ []string, attr slog.Attr) slog.Attr {
	switch attr.Key {
	case slog.TimeKey:
		attr.Key = "ts"
		if attr.Value.Kind() == slog.KindTime {
			attr.Value = slog.StringValue(attr.Value.Time().UTC().Format(time.RFC3339))
		}
	case slog.LevelKey:
		attr.Value = slog.StringValue(strings.ToLower(attr.Value.String()))
	case slog.SourceKey:
		if src, ok := attr.Value.Any().(*slog.Source); ok && src != nil {
			attr.Value = slog.StringValue(fmt.Sprintf("%s:%d", filepath.Base(src.File), src.Line))
		}
	}
	return attr
}

type ctxKey int

const (
	runIDKey ctxKey = iota
	providerKey
)

// WithRunID 把本次运行的 id 放进 context。
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext 取出 run id。
func RunIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(runIDKey).(string)
	return id, ok && id != ""
}

// WithProvider 把当前 provider 名放进 context。
func WithProvider(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, providerKey, name)
}

func providerFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	name, ok := ctx.Value(providerKey).(string)
	return name, ok && name != ""
}

// WithContext 返回带上 context 中 run_id / provider 字段的 logger。
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	args := make([]any, 0, 4)
	if id, ok := RunIDFromContext(ctx); ok {
		args = append(args, FieldRunID, id)
	}
	if name, ok := providerFromContext(ctx); ok {
		args = append(args, FieldProvider, name)
	}
	if len(args) == 0 {
		return logger
	}
	return logger.With(args...)
}
