package podnapisi

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/subfetch/internal/domain"
	"github.com/John-Robertt/subfetch/internal/language"
	"github.com/John-Robertt/subfetch/internal/provider"
)

// Provider 实现 podnapisi.net：JSON 搜索影片，字幕列表页每行带语言代码，下载为 zip。
type Provider struct {
	// BaseURL 为空时使用 https://www.podnapisi.net。
	BaseURL string
}

func (Provider) Name() string { return "podnapisi" }

func (p Provider) baseURL() string {
	return provider.BaseURL(p.BaseURL, "https://www.podnapisi.net")
}

type searchResult struct {
	Data []struct {
		ID    string `json:"id"`
		Title string `json:"title"`
		Type  string `json:"type"`
		Year  int    `json:"year"`
	} `json:"data"`
	Status string `json:"status"`
}

func (p Provider) Search(ctx context.Context, c *http.Client, query string, opts domain.QueryOptions) ([]*provider.Movie, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("query 不能为空")
	}

	h := http.Header{}
	h.Set("X-Requested-With", "XMLHttpRequest")
	var res searchResult
	if err := provider.GetJSON(ctx, c, p.baseURL()+"/moviedb/search/?keywords="+url.QueryEscape(query), h, &res); err != nil {
		return nil, err
	}

	out := make([]*provider.Movie, 0, len(res.Data))
	for _, e := range res.Data {
		if strings.TrimSpace(e.ID) == "" {
			continue
		}
		out = append(out, provider.NewMovie(e.Title, e.ID, opts, p.listSubtitles))
	}
	return out, nil
}

func (p Provider) listSubtitles(ctx context.Context, c *http.Client, m *provider.Movie) ([]*provider.Subtitle, error) {
	base := p.baseURL()
	doc, err := provider.GetDocument(ctx, c, base+"/subtitles/search/"+url.PathEscape(m.Locator), nil)
	if err != nil {
		return nil, err
	}

	out := make([]*provider.Subtitle, 0, 16)
	doc.Find("tbody").First().Children().Each(func(_ int, tr *goquery.Selection) {
		lang, _ := language.Parse(tr.Find("abbr").First().Text())
		if !provider.WantLanguage(m.Options, lang) {
			return
		}
		href, ok := tr.Find(`a[rel="nofollow"]`).First().Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		info := domain.SubtitleInfo{
			Filename: provider.NormSpace(tr.Find(`span[class="release"]`).First().Text()),
			Language: lang,
		}
		out = append(out, provider.NewSubtitle(m, provider.ResolveURL(base+"/", href), info, true, nil))
	})
	return out, nil
}
