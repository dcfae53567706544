package yifysubtitles

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/subfetch/internal/domain"
	"github.com/John-Robertt/subfetch/internal/provider"
)

// Provider 实现 yifysubtitles.ch。
//
// 约束：
// - 搜索接口返回 IMDb 编号，影片页按 IMDb 编号访问
// - 语言只有自由文本名称，先恢复为代码再过滤；恢复不出来的保留
// - 下载地址由详情页链接改写得到（/subtitles/x => /subtitle/x.zip），不需要额外请求
type Provider struct {
	// BaseURL 为空时使用 https://yifysubtitles.ch。
	BaseURL string
}

func (Provider) Name() string { return "yifysubtitles" }

func (p Provider) baseURL() string {
	return provider.BaseURL(p.BaseURL, "https://yifysubtitles.ch")
}

type suggestion struct {
	Movie string `json:"movie"`
	IMDb  string `json:"imdb"`
}

func (p Provider) Search(ctx context.Context, c *http.Client, query string, opts domain.QueryOptions) ([]*provider.Movie, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("query 不能为空")
	}

	base := p.baseURL()
	var list []suggestion
	if err := provider.GetJSON(ctx, c, base+"/ajax/search/?mov="+url.QueryEscape(query), nil, &list); err != nil {
		return nil, err
	}

	out := make([]*provider.Movie, 0, len(list))
	for _, s := range list {
		if strings.TrimSpace(s.IMDb) == "" {
			continue
		}
		out = append(out, provider.NewMovie(s.Movie, base+"/movie-imdb/"+url.PathEscape(s.IMDb), opts, p.listSubtitles))
	}
	return out, nil
}

func (p Provider) listSubtitles(ctx context.Context, c *http.Client, m *provider.Movie) ([]*provider.Subtitle, error) {
	doc, err := provider.GetDocument(ctx, c, m.Locator, nil)
	if err != nil {
		return nil, err
	}

	out := make([]*provider.Subtitle, 0, 16)
	doc.Find("table").First().Find("tr").Each(func(_ int, tr *goquery.Selection) {
		link := tr.Find(`a > span[class="text-muted"]`).First().Parent()
		href, ok := link.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}

		lang := provider.RecoverLanguage(tr.Find(`span[class="sub-lang"]`).First().Text(), m.Options)
		if !provider.WantRecoveredLanguage(m.Options, lang) {
			return
		}

		// 链接文本形如 "subtitle The.Matrix.1999.720p"，第一个词是站点加的前缀。
		name := provider.FirstLine(link.Text())
		if i := strings.IndexByte(name, ' '); i >= 0 {
			name = name[i+1:]
		}
		info := domain.SubtitleInfo{
			Filename: strings.TrimSpace(name) + ".zip",
			Language: lang,
		}
		out = append(out, provider.NewSubtitle(m, href, info, true, p.resolve))
	})
	return out, nil
}

func (p Provider) resolve(_ context.Context, _ *http.Client, s *provider.Subtitle) (provider.Resolution, error) {
	href := strings.TrimSpace(s.Locator)
	if href == "" {
		return provider.Resolution{}, nil
	}
	u := provider.ResolveURL(p.baseURL()+"/", href) + ".zip"
	return provider.Resolution{URL: strings.Replace(u, "/subtitles/", "/subtitle/", 1)}, nil
}
