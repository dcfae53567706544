package run

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/John-Robertt/subfetch/internal/domain"
	"github.com/John-Robertt/subfetch/internal/logging"
	"github.com/John-Robertt/subfetch/internal/match"
	"github.com/John-Robertt/subfetch/internal/provider"
)

// ErrUnknownProvider 表示请求的 provider 不在注册表中。
var ErrUnknownProvider = errors.New("未知的 provider")

// Selection 是可选的消歧查询：只重排候选，不过滤。
// Query 为空时不做重排，保持站点给出的顺序。
type Selection struct {
	MovieQuery string
	// MovieMatch 为 nil 时使用 Request.Options.Match。
	MovieMatch *match.Options

	SubtitleQuery string
	// SubtitleMatch 为 nil 时使用 Request.Options.Match。
	SubtitleMatch *match.Options
}

// Request 描述一次下载请求。
type Request struct {
	Query     string
	Options   domain.QueryOptions
	Selection Selection
}

// Result 是单个 provider 成功时的结果。
type Result struct {
	Provider string
	Movie    *provider.Movie
	Subtitle *provider.Subtitle
	File     domain.DownloadedFile
}

// SearchResult 是 search 子命令需要的候选列表（已按 Selection 重排）。
type SearchResult struct {
	Provider  string
	Movies    []*provider.Movie
	Subtitles []*provider.Subtitle
}

// Attempt 记录回退链中的一次尝试；Err 为 nil 表示成功。
type Attempt struct {
	Provider string
	Kind     string
	Err      error
}

// Outcome 是 DownloadFirst 的结果。
type Outcome struct {
	RunID    string
	Result   Result
	Attempts []Attempt
}

// Runner 串起 provider 的 Search -> Subtitles -> Download。
// Runner 本身不持有可变状态，可以被多个 goroutine 同时使用。
type Runner struct {
	Client   *http.Client
	Logger   *slog.Logger
	Observer Observer
}

func (r *Runner) client() *http.Client {
	if r.Client != nil {
		return r.Client
	}
	return http.DefaultClient
}

func (r *Runner) observer() Observer {
	if r.Observer != nil {
		return r.Observer
	}
	return nopObserver{}
}

// Download 对单个 provider 执行完整流程：
// 没有影片 => ErrNoMovies；没有字幕 => ErrNoSubtitles；其余错误原样上抛（包在 *provider.Error 里）。
func (r *Runner) Download(ctx context.Context, p provider.Provider, req Request) (Result, error) {
	ctx, _ = ensureRunID(ctx)
	name := strings.ToLower(p.Name())
	ctx = logging.WithProvider(ctx, name)
	log := logging.WithContext(ctx, r.Logger)

	movie, subs, err := r.candidates(ctx, p, req, log)
	if err != nil {
		return Result{}, err
	}
	if len(subs) == 0 {
		return Result{}, r.fail(log, name, StageListSubtitles, provider.ErrNoSubtitles)
	}

	sub := subs[0]
	t0 := time.Now()
	f, err := sub.Download(ctx, r.client())
	if err != nil {
		r.observer().OnStage(name, StageDownload, map[string]any{logging.FieldErrorKind: provider.Kind(err)}, time.Since(t0))
		perr := r.fail(log, name, StageDownload, err)
		if !sub.Resolved() {
			perr.Stage = "resolve"
		}
		return Result{}, perr
	}
	r.observer().OnStage(name, StageDownload, map[string]any{
		"filename": f.Filename,
		"texts":    len(f.Texts),
	}, time.Since(t0))
	log.Debug("字幕已下载", logging.FieldStage, StageDownload, "filename", f.Filename, "texts", len(f.Texts))

	return Result{Provider: name, Movie: movie, Subtitle: sub, File: f}, nil
}

// Search 只做到列出字幕候选为止，不下载。
// 第一部影片没有字幕不算错误（Subtitles 为空）。
func (r *Runner) Search(ctx context.Context, p provider.Provider, req Request) (SearchResult, error) {
	ctx, _ = ensureRunID(ctx)
	name := strings.ToLower(p.Name())
	ctx = logging.WithProvider(ctx, name)
	log := logging.WithContext(ctx, r.Logger)

	movies, err := r.searchMovies(ctx, p, req, log)
	if err != nil {
		return SearchResult{}, err
	}
	subs, err := r.listSubtitles(ctx, name, movies[0], req, log)
	if err != nil {
		return SearchResult{}, err
	}
	return SearchResult{Provider: name, Movies: movies, Subtitles: subs}, nil
}

// DownloadFirst 依次尝试 names 中的 provider，返回第一个成功的结果。
// 每个 provider 内部仍然不重试；context 取消时立即停止，不再尝试后续 provider。
func (r *Runner) DownloadFirst(ctx context.Context, reg provider.Registry, names []string, req Request) (Outcome, error) {
	ctx, runID := ensureRunID(ctx)
	out := Outcome{RunID: runID}

	if len(names) == 0 {
		return out, fmt.Errorf("%w：未指定 provider", ErrUnknownProvider)
	}
	providers := make([]provider.Provider, 0, len(names))
	for _, n := range names {
		p, ok := reg.Get(n)
		if !ok {
			return out, fmt.Errorf("%w：%q", ErrUnknownProvider, n)
		}
		providers = append(providers, p)
	}

	obs := r.observer()
	obs.OnStart(runID, req, names)
	log := logging.WithContext(ctx, r.Logger)
	log.Info("开始下载", "query", req.Query, "language", string(req.Options.Language), "providers", strings.Join(names, ","))

	var lastErr error
	for _, p := range providers {
		t0 := time.Now()
		res, err := r.Download(ctx, p, req)
		a := Attempt{Provider: strings.ToLower(p.Name()), Kind: provider.Kind(err), Err: err}
		out.Attempts = append(out.Attempts, a)
		obs.OnAttemptDone(a, time.Since(t0))

		if err == nil {
			out.Result = res
			log.Info("下载成功", logging.FieldProvider, a.Provider, "filename", res.File.Filename, "texts", len(res.File.Texts))
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	log.Warn("所有 provider 都失败", logging.FieldErrorKind, provider.Kind(lastErr), "error", lastErr)
	return out, lastErr
}

func (r *Runner) candidates(ctx context.Context, p provider.Provider, req Request, log *slog.Logger) (*provider.Movie, []*provider.Subtitle, error) {
	name := strings.ToLower(p.Name())
	movies, err := r.searchMovies(ctx, p, req, log)
	if err != nil {
		return nil, nil, err
	}
	subs, err := r.listSubtitles(ctx, name, movies[0], req, log)
	if err != nil {
		return nil, nil, err
	}
	return movies[0], subs, nil
}

func (r *Runner) searchMovies(ctx context.Context, p provider.Provider, req Request, log *slog.Logger) ([]*provider.Movie, error) {
	name := strings.ToLower(p.Name())
	obs := r.observer()

	t0 := time.Now()
	movies, err := p.Search(ctx, r.client(), req.Query, req.Options)
	if err == nil && len(movies) == 0 {
		err = provider.ErrNoMovies
	}
	if err != nil {
		obs.OnStage(name, StageSearch, map[string]any{logging.FieldErrorKind: provider.Kind(err)}, time.Since(t0))
		return nil, r.fail(log, name, StageSearch, err)
	}
	obs.OnStage(name, StageSearch, map[string]any{"movies": len(movies)}, time.Since(t0))
	log.Debug("影片候选", logging.FieldStage, StageSearch, "count", len(movies))

	if q := strings.TrimSpace(req.Selection.MovieQuery); q != "" {
		t0 = time.Now()
		movies = match.Rank(q, movies, func(m *provider.Movie) string { return m.Title }, rankOptions(req.Selection.MovieMatch, req.Options.Match))
		obs.OnStage(name, StageRankMovies, map[string]any{"best": movies[0].Title}, time.Since(t0))
		log.Debug("影片已重排", logging.FieldStage, StageRankMovies, "query", q, "best", movies[0].Title)
	}
	return movies, nil
}

func (r *Runner) listSubtitles(ctx context.Context, name string, m *provider.Movie, req Request, log *slog.Logger) ([]*provider.Subtitle, error) {
	obs := r.observer()

	t0 := time.Now()
	subs, err := m.Subtitles(ctx, r.client())
	if err != nil {
		obs.OnStage(name, StageListSubtitles, map[string]any{logging.FieldErrorKind: provider.Kind(err)}, time.Since(t0))
		return nil, r.fail(log, name, StageListSubtitles, err)
	}
	obs.OnStage(name, StageListSubtitles, map[string]any{"movie": m.Title, "subtitles": len(subs)}, time.Since(t0))
	log.Debug("字幕候选", logging.FieldStage, StageListSubtitles, "movie", m.Title, "count", len(subs))

	if q := strings.TrimSpace(req.Selection.SubtitleQuery); q != "" && len(subs) > 0 {
		t0 = time.Now()
		subs = match.Rank(q, subs, func(s *provider.Subtitle) string { return s.Info.Filename }, rankOptions(req.Selection.SubtitleMatch, req.Options.Match))
		obs.OnStage(name, StageRankSubtitles, map[string]any{"best": subs[0].Info.Filename}, time.Since(t0))
		log.Debug("字幕已重排", logging.FieldStage, StageRankSubtitles, "query", q, "best", subs[0].Info.Filename)
	}
	return subs, nil
}

func (r *Runner) fail(log *slog.Logger, name, stage string, err error) *provider.Error {
	log.Warn("阶段失败", logging.FieldStage, stage, logging.FieldErrorKind, provider.Kind(err), "error", err)
	return &provider.Error{Provider: name, Stage: providerStage(stage), Err: err}
}

// providerStage 把 run 的阶段名收敛到 provider.Error 的 Stage 取值。
func providerStage(stage string) string {
	switch stage {
	case StageSearch, StageRankMovies:
		return "search"
	case StageListSubtitles, StageRankSubtitles:
		return "list"
	default:
		return "download"
	}
}

// rankOptions：消歧只重排不过滤，因此阈值固定为 0。
func rankOptions(sel *match.Options, def match.Options) match.Options {
	opts := def
	if sel != nil {
		opts = *sel
	}
	opts.Threshold = 0
	return opts
}

func ensureRunID(ctx context.Context) (context.Context, string) {
	if id, ok := logging.RunIDFromContext(ctx); ok {
		return ctx, id
	}
	id := uuid.NewString()
	return logging.WithRunID(ctx, id), id
}
