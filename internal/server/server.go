// Package server 在编排流程之上提供一个 JSON HTTP API。
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/John-Robertt/subfetch/internal/app/run"
	"github.com/John-Robertt/subfetch/internal/domain"
	"github.com/John-Robertt/subfetch/internal/language"
	"github.com/John-Robertt/subfetch/internal/logging"
	"github.com/John-Robertt/subfetch/internal/provider"
)

const (
	// KindBadRequest 是请求本身不合法时的 kind。
	KindBadRequest = "bad_request"

	maxRequestBody = 1 << 20
	requestTimeout = 2 * time.Minute
)

// Options 是 Server 的依赖与默认值。
type Options struct {
	Registry provider.Registry
	Client   *http.Client
	Logger   *slog.Logger
	// Providers 是请求未指定 provider 时的尝试顺序。
	Providers []string
	// Defaults 是请求未覆盖时的查询配置。
	Defaults domain.QueryOptions
}

type Server struct {
	reg       provider.Registry
	runner    *run.Runner
	log       *slog.Logger
	providers []string
	defaults  domain.QueryOptions
	events    *EventBus
}

func New(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = logging.NewNop()
	}
	events := NewEventBus()
	return &Server{
		reg:       opts.Registry,
		runner:    &run.Runner{Client: opts.Client, Logger: log, Observer: events},
		log:       log,
		providers: append([]string(nil), opts.Providers...),
		defaults:  opts.Defaults,
		events:    events,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(api chi.Router) {
		api.Get("/health", s.handleHealth)
		api.Get("/providers", s.handleProviders)
		api.Get("/events", s.handleEvents)

		api.Group(func(g chi.Router) {
			g.Use(middleware.Timeout(requestTimeout))
			g.Post("/download", s.handleDownload)
			g.Post("/search", s.handleSearch)
		})
	})
	return r
}

// queryRequest 是 /download 与 /search 的请求体。
type queryRequest struct {
	Query         string   `json:"query"`
	Provider      string   `json:"provider"`
	Providers     []string `json:"providers"`
	Language      string   `json:"language"`
	MovieQuery    string   `json:"movie_query"`
	SubtitleQuery string   `json:"subtitle_query"`
}

type downloadResponse struct {
	RunID    string                 `json:"run_id"`
	Provider string                 `json:"provider"`
	Movie    string                 `json:"movie"`
	Filename string                 `json:"filename"`
	Texts    []string               `json:"texts"`
	Attempts []domain.AttemptResult `json:"attempts"`
}

type movieJSON struct {
	Title   string `json:"title"`
	Locator string `json:"locator"`
}

type subtitleJSON struct {
	Filename string `json:"filename"`
	Language string `json:"language"`
	Locator  string `json:"locator"`
	Archive  bool   `json:"archive"`
}

type searchResponse struct {
	Provider  string         `json:"provider"`
	Movies    []movieJSON    `json:"movies"`
	Subtitles []subtitleJSON `json:"subtitles"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "subfetch",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleProviders(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"providers": s.reg.Names(),
		"default":   s.providers,
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	body, names, req, err := s.decode(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, KindBadRequest, err)
		return
	}

	ctx := r.Context()
	if id := middleware.GetReqID(ctx); id != "" {
		ctx = logging.WithRunID(ctx, id)
	}
	out, err := s.runner.DownloadFirst(ctx, s.reg, names, req)
	if err != nil {
		if errors.Is(err, run.ErrUnknownProvider) {
			writeError(w, http.StatusBadRequest, KindBadRequest, err)
			return
		}
		kind := provider.Kind(err)
		writeError(w, statusForKind(kind), kind, err)
		return
	}

	rep := run.BuildReport(req, names, out, nil, nil, time.Time{}, time.Time{})
	s.log.Info("api 下载完成", logging.FieldRunID, out.RunID, "query", body.Query, logging.FieldProvider, out.Result.Provider)
	writeJSON(w, http.StatusOK, downloadResponse{
		RunID:    out.RunID,
		Provider: out.Result.Provider,
		Movie:    out.Result.Movie.Title,
		Filename: out.Result.File.Filename,
		Texts:    out.Result.File.Texts,
		Attempts: rep.Attempts,
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	_, names, req, err := s.decode(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, KindBadRequest, err)
		return
	}
	p, ok := s.reg.Get(names[0])
	if !ok {
		writeError(w, http.StatusBadRequest, KindBadRequest, fmt.Errorf("%w：%q", run.ErrUnknownProvider, names[0]))
		return
	}

	res, err := s.runner.Search(r.Context(), p, req)
	if err != nil {
		kind := provider.Kind(err)
		writeError(w, statusForKind(kind), kind, err)
		return
	}

	resp := searchResponse{
		Provider:  res.Provider,
		Movies:    make([]movieJSON, 0, len(res.Movies)),
		Subtitles: make([]subtitleJSON, 0, len(res.Subtitles)),
	}
	for _, m := range res.Movies {
		resp.Movies = append(resp.Movies, movieJSON{Title: m.Title, Locator: m.Locator})
	}
	for _, sub := range res.Subtitles {
		resp.Subtitles = append(resp.Subtitles, subtitleJSON{
			Filename: sub.Info.Filename,
			Language: string(sub.Info.Language),
			Locator:  sub.Locator,
			Archive:  sub.IsArchive,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "", errors.New("streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	stream := s.events.Subscribe()
	defer s.events.Unsubscribe(stream)

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg := <-stream:
			_, _ = fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		case <-heartbeat.C:
			_, _ = io.WriteString(w, ": heartbeat\n\n")
			flusher.Flush()
		}
	}
}

// decode 解析请求体并补上默认值；返回的 names 至少有一个元素。
func (s *Server) decode(r *http.Request) (queryRequest, []string, run.Request, error) {
	var body queryRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		return body, nil, run.Request{}, fmt.Errorf("decode request: %w", err)
	}
	body.Query = strings.TrimSpace(body.Query)
	if body.Query == "" {
		return body, nil, run.Request{}, errors.New("query cannot be empty")
	}

	names := body.Providers
	if p := strings.TrimSpace(body.Provider); p != "" {
		names = append([]string{p}, names...)
	}
	if len(names) == 0 {
		names = s.providers
	}
	if len(names) == 0 {
		return body, nil, run.Request{}, errors.New("provider cannot be empty")
	}

	opts := s.defaults
	if lang := strings.TrimSpace(body.Language); lang != "" {
		code, ok := language.Parse(lang)
		if !ok {
			return body, nil, run.Request{}, fmt.Errorf("unknown language %q", lang)
		}
		opts.Language = code
	}

	req := run.Request{
		Query:   body.Query,
		Options: opts,
		Selection: run.Selection{
			MovieQuery:    strings.TrimSpace(body.MovieQuery),
			SubtitleQuery: strings.TrimSpace(body.SubtitleQuery),
		},
	}
	return body, names, req, nil
}

// statusForKind 把错误类别映射为 HTTP 状态码。
func statusForKind(kind string) int {
	switch kind {
	case domain.KindNoMovies, domain.KindNoSubtitles, domain.KindNoLocator:
		return http.StatusNotFound
	case domain.KindNetwork, domain.KindFetchFailed:
		return http.StatusBadGateway
	case domain.KindEmptyArchive, domain.KindArchiveExtraction:
		return http.StatusUnprocessableEntity
	case domain.KindCanceled, domain.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, kind string, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error(), "kind": kind})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
