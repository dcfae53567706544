package moviesubtitlesrt

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

// Provider 实现 moviesubtitlesrt.com：每部影片只有一个字幕下载链接，语言只有自由文本名称。
type Provider struct {
	// BaseURL 为空时使用 https://moviesubtitlesrt.com。
	BaseURL string
}

func (Provider) Name() string { return "moviesubtitlesrt" }

func (p Provider) baseURL() string {
	return provider.BaseURL(p.BaseURL, "https://moviesubtitlesrt.com")
}

func (p Provider) Search(ctx context.Context, c *http.Client, query string, opts domain.QueryOptions) ([]*provider.Movie, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("query 不能为空")
	}

	base := p.baseURL()
	doc, err := provider.GetDocument(ctx, c, base+"/?s="+url.QueryEscape(query), nil)
	if err != nil {
		return nil, err
	}

	out := make([]*provider.Movie, 0, 8)
	doc.Find(`div[class="inside-article"] > header > h2 > a`).Each(func(_ int, a *goquery.Selection) {
		title := provider.NormSpace(a.Text())
		href, ok := a.Attr("href")
		if title == "" || !ok || strings.TrimSpace(href) == "" {
			return
		}
		out = append(out, provider.NewMovie(title, provider.ResolveURL(base+"/", href), opts, p.listSubtitles))
	})
	return out, nil
}

// listSubtitles 返回 0 或 1 条字幕。
// 页面给出的语言名先恢复为代码；设置了语言过滤且语言确定不符时丢弃，语言未知时保留。
func (p Provider) listSubtitles(ctx context.Context, c *http.Client, m *provider.Movie) ([]*provider.Subtitle, error) {
	doc, err := provider.GetDocument(ctx, c, m.Locator, nil)
	if err != nil {
		return nil, err
	}

	href, ok := doc.Find("center > a").First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return nil, nil
	}

	label := strings.TrimSpace(doc.Find("tbody > tr:nth-child(2) > td:last-child").First().Text())
	lang := provider.RecoverLanguage(label, m.Options)
	if !provider.WantRecoveredLanguage(m.Options, lang) {
		return nil, nil
	}

	info := domain.SubtitleInfo{
		Filename: m.Title + ".zip",
		Language: lang,
	}
	return []*provider.Subtitle{
		provider.NewSubtitle(m, provider.ResolveURL(m.Locator, href), info, true, nil),
	}, nil
}
