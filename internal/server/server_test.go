package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/John-Robertt/subfetch/internal/domain"
	"github.com/John-Robertt/subfetch/internal/provider"
)

type stubProvider struct {
	name   string
	titles []string
	subs   []string
	base   string
	err    error

	gotOpts domain.QueryOptions
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Search(ctx context.Context, c *http.Client, query string, opts domain.QueryOptions) ([]*provider.Movie, error) {
	p.gotOpts = opts
	if p.err != nil {
		return nil, p.err
	}
	var out []*provider.Movie
	for _, t := range p.titles {
		out = append(out, provider.NewMovie(t, t, opts, p.list))
	}
	return out, nil
}

func (p *stubProvider) list(ctx context.Context, c *http.Client, m *provider.Movie) ([]*provider.Subtitle, error) {
	var out []*provider.Subtitle
	for _, fn := range p.subs {
		out = append(out, provider.NewSubtitle(m, p.base+"/"+fn, domain.SubtitleInfo{Filename: fn, Language: "en"}, false, nil))
	}
	return out, nil
}

func newTestServer(t *testing.T, providers ...provider.Provider) (*Server, *httptest.Server) {
	t.Helper()
	reg, err := provider.NewRegistry(providers...)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	s := New(Options{Registry: reg, Providers: []string{providers[0].Name()}})
	srv := httptest.NewServer(s.Routes())
	t.Cleanup(srv.Close)
	return s, srv
}

func newPayloadServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("1\n00:00:01,000 --> 00:00:02,000\n" + r.URL.Path[1:] + "\n"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("请求失败：%v", err)
	}
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("解析响应失败：%v", err)
	}
	return resp, out
}

func TestHealth(t *testing.T) {
	_, srv := newTestServer(t, &stubProvider{name: "a"})

	resp, err := http.Get(srv.URL + "/api/v1/health")
	if err != nil {
		t.Fatalf("请求失败：%v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("期望 200，实际 %d", resp.StatusCode)
	}
}

func TestProviders(t *testing.T) {
	_, srv := newTestServer(t, &stubProvider{name: "b"}, &stubProvider{name: "a"})

	resp, err := http.Get(srv.URL + "/api/v1/providers")
	if err != nil {
		t.Fatalf("请求失败：%v", err)
	}
	defer resp.Body.Close()
	var body struct {
		Providers []string `json:"providers"`
		Default   []string `json:"default"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("解析响应失败：%v", err)
	}
	if strings.Join(body.Providers, ",") != "a,b" {
		t.Fatalf("期望 a,b，实际 %v", body.Providers)
	}
	if strings.Join(body.Default, ",") != "b" {
		t.Fatalf("期望默认 b，实际 %v", body.Default)
	}
}

func TestDownload_OK(t *testing.T) {
	payload := newPayloadServer(t)
	p := &stubProvider{name: "a", base: payload.URL, titles: []string{"Alpha", "Beta"}, subs: []string{"a.srt", "b.srt"}}
	_, srv := newTestServer(t, p)

	resp, body := postJSON(t, srv.URL+"/api/v1/download", `{"query":"x","language":"en","movie_query":"beta","subtitle_query":"b"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("期望 200，实际 %d（%v）", resp.StatusCode, body)
	}
	if body["provider"] != "a" || body["movie"] != "Beta" || body["filename"] != "b.srt" {
		t.Fatalf("响应不符合预期：%v", body)
	}
	texts, _ := body["texts"].([]any)
	if len(texts) != 1 || !strings.Contains(texts[0].(string), "b.srt") {
		t.Fatalf("texts 不符合预期：%v", body["texts"])
	}
	if p.gotOpts.Language != "en" {
		t.Fatalf("期望 language=en 传给 provider，实际 %q", p.gotOpts.Language)
	}
}

func TestDownload_ErrorMapping(t *testing.T) {
	payload := newPayloadServer(t)
	cases := []struct {
		name   string
		p      *stubProvider
		status int
		kind   string
	}{
		{"no movies", &stubProvider{name: "a"}, http.StatusNotFound, domain.KindNoMovies},
		{"no subtitles", &stubProvider{name: "a", titles: []string{"A"}}, http.StatusNotFound, domain.KindNoSubtitles},
		{"network", &stubProvider{name: "a", err: &provider.NetworkError{URL: "u", StatusCode: 503}}, http.StatusBadGateway, domain.KindNetwork},
		{"fetch failed", &stubProvider{name: "a", err: errors.New("boom")}, http.StatusBadGateway, domain.KindFetchFailed},
		{"timeout", &stubProvider{name: "a", err: fmt.Errorf("get: %w", context.DeadlineExceeded)}, http.StatusGatewayTimeout, domain.KindTimeout},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.p.base = payload.URL
			_, srv := newTestServer(t, tc.p)
			resp, body := postJSON(t, srv.URL+"/api/v1/download", `{"query":"x"}`)
			if resp.StatusCode != tc.status {
				t.Fatalf("期望 %d，实际 %d", tc.status, resp.StatusCode)
			}
			if body["kind"] != tc.kind {
				t.Fatalf("期望 kind=%q，实际 %v", tc.kind, body["kind"])
			}
		})
	}
}

func TestDownload_BadRequest(t *testing.T) {
	_, srv := newTestServer(t, &stubProvider{name: "a"})

	for _, body := range []string{
		`{`,
		`{"query":""}`,
		`{"query":"x","language":"klingon"}`,
		`{"query":"x","provider":"nope"}`,
		`{"query":"x","unknown":1}`,
	} {
		resp, out := postJSON(t, srv.URL+"/api/v1/download", body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("body=%s：期望 400，实际 %d", body, resp.StatusCode)
		}
		if out["kind"] != KindBadRequest {
			t.Fatalf("body=%s：期望 kind=%q，实际 %v", body, KindBadRequest, out["kind"])
		}
	}
}

func TestSearch(t *testing.T) {
	p := &stubProvider{name: "a", titles: []string{"Alpha", "Beta"}, subs: []string{"a.srt"}}
	_, srv := newTestServer(t, p)

	resp, err := http.Post(srv.URL+"/api/v1/search", "application/json", strings.NewReader(`{"query":"x","movie_query":"beta"}`))
	if err != nil {
		t.Fatalf("请求失败：%v", err)
	}
	defer resp.Body.Close()
	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("解析响应失败：%v", err)
	}
	if len(body.Movies) != 2 || body.Movies[0].Title != "Beta" {
		t.Fatalf("期望 Beta 排第一，实际 %+v", body.Movies)
	}
	if len(body.Subtitles) != 1 || body.Subtitles[0].Filename != "a.srt" || body.Subtitles[0].Language != "en" {
		t.Fatalf("字幕不符合预期：%+v", body.Subtitles)
	}
}

func TestEvents_StreamsRunEvents(t *testing.T) {
	payload := newPayloadServer(t)
	p := &stubProvider{name: "a", base: payload.URL, titles: []string{"Alpha"}, subs: []string{"a.srt"}}
	s, srv := newTestServer(t, p)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("请求失败：%v", err)
	}
	defer resp.Body.Close()

	// 等订阅生效后再触发下载。
	deadline := time.Now().Add(2 * time.Second)
	for {
		s.events.mu.RLock()
		n := len(s.events.clients)
		s.events.mu.RUnlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("订阅未生效")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if r, _ := postJSON(t, srv.URL+"/api/v1/download", `{"query":"x"}`); r.StatusCode != http.StatusOK {
		t.Fatalf("期望 200，实际 %d", r.StatusCode)
	}

	sc := bufio.NewScanner(resp.Body)
	var events []string
	for sc.Scan() && len(events) < 2 {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev struct {
			Event string `json:"event"`
		}
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Fatalf("解析事件失败：%v", err)
		}
		events = append(events, ev.Event)
	}
	if len(events) < 2 || events[0] != "run.started" || events[1] != "run.stage" {
		t.Fatalf("事件不符合预期：%v", events)
	}
}

func TestStatusForKind(t *testing.T) {
	cases := map[string]int{
		domain.KindNoLocator:         http.StatusNotFound,
		domain.KindEmptyArchive:      http.StatusUnprocessableEntity,
		domain.KindArchiveExtraction: http.StatusUnprocessableEntity,
		domain.KindCanceled:          http.StatusGatewayTimeout,
		"":                           http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := statusForKind(kind); got != want {
			t.Fatalf("kind=%q：期望 %d，实际 %d", kind, want, got)
		}
	}
}
