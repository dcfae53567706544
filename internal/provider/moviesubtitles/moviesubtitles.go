package moviesubtitles

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/subfetch/internal/domain"
	"github.com/John-Robertt/subfetch/internal/language"
	"github.com/John-Robertt/subfetch/internal/provider"
)

// Provider 实现 moviesubtitles.org 的搜索与下载。
//
// 约束：
// - 搜索是 POST 表单，站点即使成功也常返回 500，因此不检查状态码
// - 字幕语言取自国旗图片的文件名（本身就是代码），按代码精确过滤
// - 下载一律是 zip
type Provider struct {
	// BaseURL 为空时使用 https://www.moviesubtitles.org。
	BaseURL string
}

func (Provider) Name() string { return "moviesubtitles" }

func (p Provider) baseURL() string {
	return provider.BaseURL(p.BaseURL, "https://www.moviesubtitles.org")
}

func (p Provider) Search(ctx context.Context, c *http.Client, query string, opts domain.QueryOptions) ([]*provider.Movie, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("query 不能为空")
	}

	u := p.baseURL() + "/search.php"
	status, body, err := provider.PostForm(ctx, c, u, url.Values{"q": {query}}, nil)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 && (status < 200 || status >= 300) {
		return nil, &provider.NetworkError{URL: u, StatusCode: status}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	out := make([]*provider.Movie, 0, 8)
	doc.Find(`div[style="width:500px"] > a`).Each(func(_ int, a *goquery.Selection) {
		title := provider.NormSpace(a.Text())
		href, ok := a.Attr("href")
		if title == "" || !ok || strings.TrimSpace(href) == "" {
			return
		}
		out = append(out, provider.NewMovie(title, href, opts, p.listSubtitles))
	})
	return out, nil
}

func (p Provider) listSubtitles(ctx context.Context, c *http.Client, m *provider.Movie) ([]*provider.Subtitle, error) {
	base := p.baseURL() + "/"
	doc, err := provider.GetDocument(ctx, c, provider.ResolveURL(base, m.Locator), nil)
	if err != nil {
		return nil, err
	}

	out := make([]*provider.Subtitle, 0, 8)
	doc.Find(`div[style="margin-bottom:0.5em; padding:3px;"]`).Each(func(_ int, block *goquery.Selection) {
		href, ok := block.Children().Last().Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		// 详情页链接 /subtitle-123.html 与下载链接 /download-123.html 只差一个词。
		href = strings.Replace(href, "subtitle", "download", 1)

		lang := flagLanguage(block.Children().First().AttrOr("src", ""))
		if !provider.WantLanguage(m.Options, lang) {
			return
		}
		info := domain.SubtitleInfo{
			Filename: provider.FirstLine(block.Text()),
			Language: lang,
		}
		out = append(out, provider.NewSubtitle(m, provider.ResolveURL(base, href), info, true, nil))
	})
	return out, nil
}

// flagLanguage 从国旗图片地址（例如 /images/flags/en.gif）取语言代码；不认识的代码返回空。
func flagLanguage(src string) language.Code {
	src = strings.TrimSpace(src)
	if src == "" {
		return ""
	}
	name := path.Base(src)
	if i := strings.IndexByte(name, '.'); i >= 0 {
		name = name[:i]
	}
	c, _ := language.Parse(name)
	return c
}
