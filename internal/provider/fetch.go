package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// maxBodySize 限制单次响应体大小（字幕压缩包通常只有几十 KB）。
const maxBodySize = 64 << 20

// Do 执行请求并读出完整响应体。非 2xx => *NetworkError。
func Do(c *http.Client, req *http.Request) ([]byte, http.Header, error) {
	status, b, hdr, err := DoStatus(c, req)
	if err != nil {
		return nil, nil, err
	}
	if status < 200 || status >= 300 {
		return nil, nil, &NetworkError{URL: req.URL.String(), StatusCode: status, Location: strings.TrimSpace(hdr.Get("Location"))}
	}
	return b, hdr, nil
}

// DoStatus 与 Do 相同，但不检查状态码（少数站点用 5xx 返回正常页面）。
func DoStatus(c *http.Client, req *http.Request) (int, []byte, http.Header, error) {
	if c == nil {
		return 0, nil, nil, errors.New("http client 不能为空")
	}
	resp, err := c.Do(req)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return 0, nil, nil, err
	}
	if len(b) > maxBodySize {
		return 0, nil, nil, fmt.Errorf("响应体超过 %d 字节：%s", maxBodySize, req.URL.String())
	}
	return resp.StatusCode, b, resp.Header, nil
}

// Get 发起 GET 请求；header 可为 nil。
func Get(ctx context.Context, c *http.Client, u string, header http.Header) ([]byte, http.Header, error) {
	req, err := newRequest(ctx, http.MethodGet, u, nil, header)
	if err != nil {
		return nil, nil, err
	}
	return Do(c, req)
}

// GetDocument GET 并把响应解析为 HTML 文档。
func GetDocument(ctx context.Context, c *http.Client, u string, header http.Header) (*goquery.Document, error) {
	b, _, err := Get(ctx, c, u, header)
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(bytes.NewReader(b))
}

// GetJSON GET 并把响应解码到 v。
func GetJSON(ctx context.Context, c *http.Client, u string, header http.Header, v any) error {
	h := header.Clone()
	if h == nil {
		h = http.Header{}
	}
	if h.Get("Accept") == "" {
		h.Set("Accept", "application/json")
	}
	b, _, err := Get(ctx, c, u, h)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("解析 JSON 失败：%s：%w", u, err)
	}
	return nil
}

// PostForm 以 application/x-www-form-urlencoded 提交表单，不检查状态码。
func PostForm(ctx context.Context, c *http.Client, u string, form url.Values, header http.Header) (int, []byte, error) {
	h := header.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Set("Content-Type", "application/x-www-form-urlencoded")
	req, err := newRequest(ctx, http.MethodPost, u, strings.NewReader(form.Encode()), h)
	if err != nil {
		return 0, nil, err
	}
	status, b, _, err := DoStatus(c, req)
	return status, b, err
}

func newRequest(ctx context.Context, method, u string, body io.Reader, header http.Header) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return req, nil
}

// ResolveURL 把 href 解析为相对 base 的绝对地址；无法解析时原样返回。
func ResolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	bu, err := url.Parse(base)
	if err != nil {
		return href
	}
	ru, err := url.Parse(href)
	if err != nil {
		return href
	}
	return bu.ResolveReference(ru).String()
}

// NormSpace 折叠连续空白。
func NormSpace(s string) string { return strings.Join(strings.Fields(s), " ") }

// BaseURL 返回去掉末尾斜杠的 base；为空时用 def。
func BaseURL(base, def string) string {
	u := strings.TrimSpace(base)
	if u == "" {
		u = def
	}
	return strings.TrimRight(u, "/")
}

// FirstLine 返回第一行非空文本（已去首尾空白）。
func FirstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
