package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/John-Robertt/subfetch/internal/archive"
	"github.com/John-Robertt/subfetch/internal/domain"
)

var (
	// ErrNoMovies 表示站点没有返回任何影片候选。
	ErrNoMovies = errors.New("没有找到影片")
	// ErrNoSubtitles 表示选中的影片没有任何字幕候选。
	ErrNoSubtitles = errors.New("没有找到字幕")
)

// NetworkError 表示站点返回了非 2xx 的 HTTP 状态码。
type NetworkError struct {
	URL        string
	StatusCode int
	Location   string
}

func (e *NetworkError) Error() string {
	if e == nil {
		return "HTTP status error"
	}
	loc := strings.TrimSpace(e.Location)
	if loc == "" {
		return fmt.Sprintf("HTTP %d url=%s", e.StatusCode, e.URL)
	}
	return fmt.Sprintf("HTTP %d url=%s location=%s", e.StatusCode, e.URL, loc)
}

// NoLocatorError 表示字幕候选解析不出可下载地址。
type NoLocatorError struct {
	Locator string
}

func (e *NoLocatorError) Error() string {
	if e == nil || strings.TrimSpace(e.Locator) == "" {
		return "没有可下载地址"
	}
	return fmt.Sprintf("没有可下载地址：locator=%s", e.Locator)
}

// ArchiveExtractionError 表示压缩包解不开，且按纯文本解码也失败。
// 两个原因都保留，errors.Is/As 对两者都生效。
type ArchiveExtractionError struct {
	ArchiveErr error
	TextErr    error
}

func (e *ArchiveExtractionError) Error() string {
	return fmt.Sprintf("解压失败：%v；按纯文本解码也失败：%v", e.ArchiveErr, e.TextErr)
}

func (e *ArchiveExtractionError) Unwrap() []error {
	return []error{e.ArchiveErr, e.TextErr}
}

// Error 是 provider 阶段的可追溯错误。
// Stage 取值："search" / "list" / "resolve" / "download"。
type Error struct {
	Provider string // provider name（小写）
	Stage    string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider=%s stage=%s: %v", e.Provider, e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Kind 把错误映射为稳定的类别码（domain.Kind*），调用方按类别分支而不是比较错误文本。
// nil 返回空串；无法归类的站点错误归为 fetch_failed。
func Kind(err error) string {
	if err == nil {
		return ""
	}

	var (
		netErr   *NetworkError
		noLoc    *NoLocatorError
		extract  *ArchiveExtractionError
		emptyArc *archive.EmptyArchiveError
		timeout  net.Error
	)
	switch {
	case errors.Is(err, context.Canceled):
		return domain.KindCanceled
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &timeout) && timeout.Timeout():
		return domain.KindTimeout
	case errors.Is(err, ErrNoMovies):
		return domain.KindNoMovies
	case errors.Is(err, ErrNoSubtitles):
		return domain.KindNoSubtitles
	case errors.As(err, &extract):
		return domain.KindArchiveExtraction
	case errors.As(err, &emptyArc):
		return domain.KindEmptyArchive
	case errors.As(err, &noLoc):
		return domain.KindNoLocator
	case errors.As(err, &netErr):
		return domain.KindNetwork
	default:
		return domain.KindFetchFailed
	}
}
