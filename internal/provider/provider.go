package provider

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/John-Robertt/subfetch/internal/domain"
)

// Provider 把“站点变化”限制在各自的子包内部；核心流程只依赖 Search + Movie/Subtitle 能力对。
//
// 约束：
// - Search 不做缓存、不做重试（单次失败直接上抛）
// - 返回的列表视为站点已排好序（best-first），核心流程默认取第 0 个
// - *http.Client 由调用方按次构造并传入，provider 不持有全局传输配置
type Provider interface {
	Name() string
	Search(ctx context.Context, c *http.Client, query string, opts domain.QueryOptions) ([]*Movie, error)
}

// ListFunc 列出某个影片下的字幕候选（站点相关）。
type ListFunc func(ctx context.Context, c *http.Client, m *Movie) ([]*Subtitle, error)

// ResolveFunc 把字幕的原始 locator 解析为可直接下载的地址（站点相关，可能需要额外请求）。
type ResolveFunc func(ctx context.Context, c *http.Client, s *Subtitle) (Resolution, error)

// Resolution 是 locator 解析结果。URL 为空表示没有可下载地址。
type Resolution struct {
	URL string
	// Filename 非空时优先于 SubtitleInfo.Filename 与 Content-Disposition。
	Filename string
	// Header 附加到下载请求上（例如 Referer）。
	Header http.Header
}

// Movie 是一次查询返回的影片候选。创建后不可变。
type Movie struct {
	Title   string
	Locator string
	Options domain.QueryOptions

	list ListFunc
}

func NewMovie(title, locator string, opts domain.QueryOptions, list ListFunc) *Movie {
	return &Movie{
		Title:   strings.TrimSpace(title),
		Locator: locator,
		Options: opts,
		list:    list,
	}
}

// Subtitles 列出字幕候选；没有 ListFunc 时返回空列表。
func (m *Movie) Subtitles(ctx context.Context, c *http.Client) ([]*Subtitle, error) {
	if m == nil || m.list == nil {
		return nil, nil
	}
	return m.list(ctx, c, m)
}

// Subtitle 是某个影片下的字幕候选。
//
// locator 解析只在第一次成功时发生，之后的 Resolve/Download 复用同一结果；
// 失败（包括“没有可下载地址”）不缓存，下次调用会重新解析。
type Subtitle struct {
	Movie     *Movie
	Locator   string
	Info      domain.SubtitleInfo
	IsArchive bool

	resolve ResolveFunc

	mu       sync.Mutex
	resolved *Resolution
}

// NewSubtitle 构造字幕候选；resolve 为 nil 表示 locator 本身就是下载地址。
func NewSubtitle(m *Movie, locator string, info domain.SubtitleInfo, isArchive bool, resolve ResolveFunc) *Subtitle {
	return &Subtitle{
		Movie:     m,
		Locator:   locator,
		Info:      info,
		IsArchive: isArchive,
		resolve:   resolve,
	}
}

// Resolve 返回下载地址（首次成功后记忆）。
func (s *Subtitle) Resolve(ctx context.Context, c *http.Client) (Resolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.resolved != nil {
		return *s.resolved, nil
	}

	r := Resolution{URL: s.Locator}
	if s.resolve != nil {
		var err error
		r, err = s.resolve(ctx, c, s)
		if err != nil {
			return Resolution{}, err
		}
	}
	r.URL = strings.TrimSpace(r.URL)
	if r.URL == "" {
		return Resolution{}, &NoLocatorError{Locator: s.Locator}
	}
	s.resolved = &r
	return r, nil
}

// Resolved 报告 locator 是否已解析。
func (s *Subtitle) Resolved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolved != nil
}

func (s *Subtitle) queryOptions() domain.QueryOptions {
	if s.Movie == nil {
		return domain.QueryOptions{}
	}
	return s.Movie.Options
}
