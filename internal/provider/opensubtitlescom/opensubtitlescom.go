package opensubtitlescom

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/subfetch/internal/domain"
	"github.com/John-Robertt/subfetch/internal/provider"
)

// DefaultCSRFToken 是站点网页端下载接口接受的 token；失效时通过配置覆盖。
const DefaultCSRFToken = "SZHfvYUiNV3uhpKkRPfQPcfhqtrdJVw9hCwxAc+XknB5Wsct+7gZOHlrwJqWElrevrWoZlReTBeJmSPPIVWmzw=="

var downloadRe = regexp.MustCompile(`file_download\('([^']*?)','([^']*?)'`)

// Provider 实现 opensubtitles.com 网页端（非 REST API）的搜索与下载。
//
// 流程：
// - autocomplete JSON 得到影片 path
// - <lang>/<path>/subtitles.json 返回 DataTables 行，每个单元格是 HTML 片段
// - 下载链接需要再请求一次，响应里的 file_download('<filename>','<url>') 才是真实地址
type Provider struct {
	// BaseURL 为空时使用 https://www.opensubtitles.com。
	BaseURL   string
	CSRFToken string
}

func (Provider) Name() string { return "opensubtitlescom" }

func (p Provider) baseURL() string {
	return provider.BaseURL(p.BaseURL, "https://www.opensubtitles.com")
}

func (p Provider) csrfToken() string {
	if t := strings.TrimSpace(p.CSRFToken); t != "" {
		return t
	}
	return DefaultCSRFToken
}

type suggestion struct {
	Title string `json:"title"`
	Path  string `json:"path"`
}

func (p Provider) Search(ctx context.Context, c *http.Client, query string, opts domain.QueryOptions) ([]*provider.Movie, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("query 不能为空")
	}
	lang := string(opts.Language)
	if lang == "" {
		lang = "en"
	}

	base := p.baseURL()
	var list []suggestion
	if err := provider.GetJSON(ctx, c, base+"/en/en/search/autocomplete/"+url.PathEscape(query)+".json", nil, &list); err != nil {
		return nil, err
	}

	out := make([]*provider.Movie, 0, len(list))
	for _, s := range list {
		if strings.TrimSpace(s.Path) == "" {
			continue
		}
		path := strings.Replace(s.Path, "current_locale", lang, 1)
		path = strings.Replace(path, "movies", "features", 1)
		out = append(out, provider.NewMovie(s.Title, base+"/"+lang+path+"/subtitles.json", opts, p.listSubtitles))
	}
	return out, nil
}

func (p Provider) listSubtitles(ctx context.Context, c *http.Client, m *provider.Movie) ([]*provider.Subtitle, error) {
	var page struct {
		Data [][]json.RawMessage `json:"data"`
	}
	if err := provider.GetJSON(ctx, c, m.Locator, nil, &page); err != nil {
		return nil, err
	}

	out := make([]*provider.Subtitle, 0, len(page.Data))
	for _, row := range page.Data {
		if len(row) < 3 {
			continue
		}
		link, err := fragment(cell(row[len(row)-1]))
		if err != nil {
			continue
		}
		href, ok := link.Find(`a[data-remote="true"]`).First().Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			continue
		}

		info := domain.SubtitleInfo{}
		if name, err := fragment(cell(row[2])); err == nil {
			info.Filename = provider.FirstLine(name.Text())
		}
		if flag, err := fragment(cell(row[1])); err == nil {
			label := flag.Find("body").Children().First().AttrOr("title", "")
			info.Language = provider.RecoverLanguage(label, m.Options)
		}
		if !provider.WantRecoveredLanguage(m.Options, info.Language) {
			continue
		}

		out = append(out, provider.NewSubtitle(m, href, info, false, p.resolve))
	}
	return out, nil
}

// resolve 请求下载中转接口，从返回的脚本里取出文件名与真实地址。
// 没有匹配时返回空 Resolution（由核心流程报 NoLocatorError）。
func (p Provider) resolve(ctx context.Context, c *http.Client, s *provider.Subtitle) (provider.Resolution, error) {
	h := http.Header{}
	h.Set("X-CSRF-Token", p.csrfToken())
	h.Set("X-Requested-With", "XMLHttpRequest")

	body, _, err := provider.Get(ctx, c, provider.ResolveURL(p.baseURL()+"/", s.Locator), h)
	if err != nil {
		return provider.Resolution{}, err
	}
	m := downloadRe.FindSubmatch(body)
	if m == nil {
		return provider.Resolution{}, nil
	}
	return provider.Resolution{URL: string(m[2]), Filename: string(m[1])}, nil
}

// cell 把 DataTables 单元格转成字符串；非字符串单元格（数字、null）按原始 JSON 文本处理。
func cell(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func fragment(html string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}
