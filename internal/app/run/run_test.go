package run

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/John-Robertt/subfetch/internal/domain"
	"github.com/John-Robertt/subfetch/internal/logging"
	"github.com/John-Robertt/subfetch/internal/match"
	"github.com/John-Robertt/subfetch/internal/provider"
)

// stubProvider 按 titles 返回影片；每部影片的字幕由 subs 给出（locator 指向测试服务器）。
type stubProvider struct {
	name   string
	titles []string
	subs   map[string][]string // movie title -> subtitle filenames
	base   string
	err    error

	searchCalls atomic.Int32
	listCalls   atomic.Int32
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Search(ctx context.Context, c *http.Client, query string, opts domain.QueryOptions) ([]*provider.Movie, error) {
	p.searchCalls.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	out := make([]*provider.Movie, 0, len(p.titles))
	for _, title := range p.titles {
		out = append(out, provider.NewMovie(title, title, opts, p.list))
	}
	return out, nil
}

func (p *stubProvider) list(ctx context.Context, c *http.Client, m *provider.Movie) ([]*provider.Subtitle, error) {
	p.listCalls.Add(1)
	var out []*provider.Subtitle
	for _, fn := range p.subs[m.Title] {
		out = append(out, provider.NewSubtitle(m, p.base+"/"+fn, domain.SubtitleInfo{Filename: fn}, false, nil))
	}
	return out, nil
}

func newEchoServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("text of " + r.URL.Path[1:]))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newRunner(srv *httptest.Server) *Runner {
	return &Runner{Client: srv.Client(), Logger: logging.NewNop()}
}

func TestDownload_NoMovies(t *testing.T) {
	srv := newEchoServer(t)
	p := &stubProvider{name: "stub", base: srv.URL}

	_, err := newRunner(srv).Download(context.Background(), p, Request{Query: "x"})
	if !errors.Is(err, provider.ErrNoMovies) {
		t.Fatalf("期望 ErrNoMovies，实际 %v", err)
	}
	if got := provider.Kind(err); got != domain.KindNoMovies {
		t.Fatalf("期望 kind=%q，实际 %q", domain.KindNoMovies, got)
	}
	var pe *provider.Error
	if !errors.As(err, &pe) || pe.Stage != "search" || pe.Provider != "stub" {
		t.Fatalf("期望 *provider.Error(stage=search)，实际 %#v", err)
	}
}

func TestDownload_NoSubtitles(t *testing.T) {
	srv := newEchoServer(t)
	p := &stubProvider{name: "stub", base: srv.URL, titles: []string{"Matrix"}}

	_, err := newRunner(srv).Download(context.Background(), p, Request{Query: "matrix"})
	if got := provider.Kind(err); got != domain.KindNoSubtitles {
		t.Fatalf("期望 kind=%q，实际 %q（err=%v）", domain.KindNoSubtitles, got, err)
	}
}

func TestDownload_DefaultTakesFirst(t *testing.T) {
	srv := newEchoServer(t)
	p := &stubProvider{
		name:   "stub",
		base:   srv.URL,
		titles: []string{"The Matrix Reloaded", "The Matrix"},
		subs: map[string][]string{
			"The Matrix Reloaded": {"reloaded.srt", "reloaded.720p.srt"},
			"The Matrix":          {"matrix.srt"},
		},
	}

	res, err := newRunner(srv).Download(context.Background(), p, Request{Query: "matrix"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if res.Movie.Title != "The Matrix Reloaded" {
		t.Fatalf("期望第一部影片，实际 %q", res.Movie.Title)
	}
	if got := res.File.Text(); got != "text of reloaded.srt" {
		t.Fatalf("期望 %q，实际 %q", "text of reloaded.srt", got)
	}
	if res.Provider != "stub" {
		t.Fatalf("期望 provider=stub，实际 %q", res.Provider)
	}
}

func TestDownload_SelectionReranks(t *testing.T) {
	srv := newEchoServer(t)
	p := &stubProvider{
		name:   "stub",
		base:   srv.URL,
		titles: []string{"The Matrix Reloaded", "The Matrix"},
		subs: map[string][]string{
			"The Matrix Reloaded": {"reloaded.srt"},
			"The Matrix":          {"matrix.1999.bluray.srt", "matrix.1999.webrip.srt"},
		},
	}

	res, err := newRunner(srv).Download(context.Background(), p, Request{
		Query:   "matrix",
		Options: domain.QueryOptions{Match: match.DefaultOptions()},
		Selection: Selection{
			MovieQuery:    "the matrix",
			MovieMatch:    &match.Options{WholeString: true, Threshold: 0.9},
			SubtitleQuery: "webrip",
		},
	})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if res.Movie.Title != "The Matrix" {
		t.Fatalf("期望重排后选中 %q，实际 %q", "The Matrix", res.Movie.Title)
	}
	if res.Subtitle.Info.Filename != "matrix.1999.webrip.srt" {
		t.Fatalf("期望重排后选中 webrip，实际 %q", res.Subtitle.Info.Filename)
	}
}

func TestDownload_UnrelatedSelectionDoesNotFilter(t *testing.T) {
	srv := newEchoServer(t)
	p := &stubProvider{
		name:   "stub",
		base:   srv.URL,
		titles: []string{"Alpha"},
		subs:   map[string][]string{"Alpha": {"a.srt"}},
	}

	res, err := newRunner(srv).Download(context.Background(), p, Request{
		Query:     "alpha",
		Selection: Selection{MovieQuery: "zzzzzz", SubtitleQuery: "qqqq"},
	})
	if err != nil {
		t.Fatalf("重排不应过滤掉唯一候选：%v", err)
	}
	if res.Movie.Title != "Alpha" {
		t.Fatalf("期望 Alpha，实际 %q", res.Movie.Title)
	}
}

func TestDownload_NetworkErrorStage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	p := &stubProvider{
		name:   "stub",
		base:   srv.URL,
		titles: []string{"Alpha"},
		subs:   map[string][]string{"Alpha": {"a.srt"}},
	}
	_, err := newRunner(srv).Download(context.Background(), p, Request{Query: "alpha"})
	if got := provider.Kind(err); got != domain.KindNetwork {
		t.Fatalf("期望 kind=%q，实际 %q", domain.KindNetwork, got)
	}
	var pe *provider.Error
	if !errors.As(err, &pe) || pe.Stage != "download" {
		t.Fatalf("期望 stage=download，实际 %#v", err)
	}
}

func TestDownloadFirst_FallsBack(t *testing.T) {
	srv := newEchoServer(t)
	bad := &stubProvider{name: "bad", base: srv.URL, err: errors.New("boom")}
	empty := &stubProvider{name: "empty", base: srv.URL}
	good := &stubProvider{
		name:   "good",
		base:   srv.URL,
		titles: []string{"Alpha"},
		subs:   map[string][]string{"Alpha": {"a.srt"}},
	}
	reg, err := provider.NewRegistry(bad, empty, good)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	out, err := newRunner(srv).DownloadFirst(context.Background(), reg, []string{"bad", "empty", "good"}, Request{Query: "alpha"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if out.Result.Provider != "good" {
		t.Fatalf("期望 good 成功，实际 %q", out.Result.Provider)
	}
	if out.RunID == "" {
		t.Fatalf("期望生成 run id")
	}

	wantKinds := []string{domain.KindFetchFailed, domain.KindNoMovies, ""}
	if len(out.Attempts) != len(wantKinds) {
		t.Fatalf("期望 %d 次尝试，实际 %d", len(wantKinds), len(out.Attempts))
	}
	for i, k := range wantKinds {
		if out.Attempts[i].Kind != k {
			t.Fatalf("attempt[%d]：期望 kind=%q，实际 %q", i, k, out.Attempts[i].Kind)
		}
	}
}

func TestDownloadFirst_StopsAfterSuccess(t *testing.T) {
	srv := newEchoServer(t)
	first := &stubProvider{
		name:   "first",
		base:   srv.URL,
		titles: []string{"Alpha"},
		subs:   map[string][]string{"Alpha": {"a.srt"}},
	}
	second := &stubProvider{name: "second", base: srv.URL}
	reg, _ := provider.NewRegistry(first, second)

	if _, err := newRunner(srv).DownloadFirst(context.Background(), reg, []string{"first", "second"}, Request{Query: "alpha"}); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if got := second.searchCalls.Load(); got != 0 {
		t.Fatalf("首个 provider 成功后不应继续尝试，second 被调用 %d 次", got)
	}
}

func TestDownloadFirst_AllFailReturnsLastError(t *testing.T) {
	srv := newEchoServer(t)
	a := &stubProvider{name: "a", base: srv.URL, err: errors.New("boom")}
	b := &stubProvider{name: "b", base: srv.URL, titles: []string{"Alpha"}}
	reg, _ := provider.NewRegistry(a, b)

	out, err := newRunner(srv).DownloadFirst(context.Background(), reg, []string{"a", "b"}, Request{Query: "alpha"})
	if got := provider.Kind(err); got != domain.KindNoSubtitles {
		t.Fatalf("期望最后一个错误 kind=%q，实际 %q", domain.KindNoSubtitles, got)
	}
	if len(out.Attempts) != 2 {
		t.Fatalf("期望 2 次尝试，实际 %d", len(out.Attempts))
	}
}

func TestDownloadFirst_CanceledStopsChain(t *testing.T) {
	srv := newEchoServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	a := &cancelProvider{cancel: cancel}
	b := &stubProvider{name: "b", base: srv.URL, titles: []string{"Alpha"}}
	reg, _ := provider.NewRegistry(a, b)

	out, err := newRunner(srv).DownloadFirst(ctx, reg, []string{"a", "b"}, Request{Query: "alpha"})
	if got := provider.Kind(err); got != domain.KindCanceled {
		t.Fatalf("期望 kind=%q，实际 %q", domain.KindCanceled, got)
	}
	if len(out.Attempts) != 1 || b.searchCalls.Load() != 0 {
		t.Fatalf("取消后不应继续尝试：attempts=%d", len(out.Attempts))
	}
}

type cancelProvider struct{ cancel context.CancelFunc }

func (p *cancelProvider) Name() string { return "a" }

func (p *cancelProvider) Search(ctx context.Context, c *http.Client, query string, opts domain.QueryOptions) ([]*provider.Movie, error) {
	p.cancel()
	return nil, ctx.Err()
}

func TestDownloadFirst_UnknownProvider(t *testing.T) {
	reg, _ := provider.NewRegistry()
	_, err := (&Runner{}).DownloadFirst(context.Background(), reg, []string{"nope"}, Request{Query: "x"})
	if !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("期望 ErrUnknownProvider，实际 %v", err)
	}
}

func TestDownloadFirst_KeepsRunIDFromContext(t *testing.T) {
	srv := newEchoServer(t)
	p := &stubProvider{name: "p", base: srv.URL, titles: []string{"Alpha"}, subs: map[string][]string{"Alpha": {"a.srt"}}}
	reg, _ := provider.NewRegistry(p)

	ctx := logging.WithRunID(context.Background(), "fixed-id")
	out, err := newRunner(srv).DownloadFirst(ctx, reg, []string{"p"}, Request{Query: "alpha"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if out.RunID != "fixed-id" {
		t.Fatalf("期望 run id=%q，实际 %q", "fixed-id", out.RunID)
	}
}

func TestSearch_ReturnsRankedCandidates(t *testing.T) {
	srv := newEchoServer(t)
	p := &stubProvider{
		name:   "stub",
		base:   srv.URL,
		titles: []string{"Beta", "Alpha"},
		subs:   map[string][]string{"Alpha": {"x.srt", "alpha.srt"}},
	}

	res, err := newRunner(srv).Search(context.Background(), p, Request{
		Query:     "a",
		Selection: Selection{MovieQuery: "alpha", SubtitleQuery: "alpha"},
	})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(res.Movies) != 2 || res.Movies[0].Title != "Alpha" {
		t.Fatalf("期望 Alpha 排第一，实际 %+v", res.Movies)
	}
	if len(res.Subtitles) != 2 || res.Subtitles[0].Info.Filename != "alpha.srt" {
		t.Fatalf("期望 alpha.srt 排第一")
	}
	for _, s := range res.Subtitles {
		if s.Resolved() {
			t.Fatalf("search 不应解析下载地址")
		}
	}
}

type recordObserver struct {
	mu sync.Mutex

	starts   int
	stages   []string
	attempts []Attempt
}

func (o *recordObserver) OnStart(runID string, req Request, providers []string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.starts++
}

func (o *recordObserver) OnStage(provider, stage string, fields map[string]any, dur time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stages = append(o.stages, provider+":"+stage)
}

func (o *recordObserver) OnAttemptDone(a Attempt, dur time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.attempts = append(o.attempts, a)
}

func TestDownloadFirst_EmitsEvents(t *testing.T) {
	srv := newEchoServer(t)
	bad := &stubProvider{name: "bad", base: srv.URL}
	good := &stubProvider{name: "good", base: srv.URL, titles: []string{"Alpha"}, subs: map[string][]string{"Alpha": {"a.srt"}}}
	reg, _ := provider.NewRegistry(bad, good)

	obs := &recordObserver{}
	r := newRunner(srv)
	r.Observer = obs
	if _, err := r.DownloadFirst(context.Background(), reg, []string{"bad", "good"}, Request{
		Query:     "alpha",
		Selection: Selection{SubtitleQuery: "a"},
	}); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	if obs.starts != 1 {
		t.Fatalf("期望 OnStart 调用 1 次，实际 %d", obs.starts)
	}
	want := []string{
		"bad:search",
		"good:search",
		"good:list_subtitles",
		"good:rank_subtitles",
		"good:download",
	}
	if len(obs.stages) != len(want) {
		t.Fatalf("阶段事件不符合预期：got=%v want=%v", obs.stages, want)
	}
	for i := range want {
		if obs.stages[i] != want[i] {
			t.Fatalf("阶段事件不符合预期：got=%v want=%v", obs.stages, want)
		}
	}
	if len(obs.attempts) != 2 || obs.attempts[0].Kind != domain.KindNoMovies || obs.attempts[1].Err != nil {
		t.Fatalf("attempt 事件不符合预期：%+v", obs.attempts)
	}
}
