package main

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/subfetch/internal/app/run"
	"github.com/John-Robertt/subfetch/internal/config"
	"github.com/John-Robertt/subfetch/internal/domain"
	"github.com/John-Robertt/subfetch/internal/logging"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 是交互终端下的进度输出。
//
// - 所有过程信息写到 stderr，不污染 stdout 的 JSON 输出契约
// - 事件驱动：run 层只发事件，CLI 决定如何展示
// - keepalive：某个阶段长时间没有结束时定期输出一行
type progressUI struct {
	w   io.Writer
	eff config.EffectiveConfig

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time
	attempt     int
	total       int
	current     string

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer, eff config.EffectiveConfig) *progressUI {
	return &progressUI{
		w:                  w,
		eff:                eff,
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnStart(runID string, req run.Request, providers []string) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	p.startedAt = now
	p.total = len(providers)

	fmt.Fprintf(p.w, "[%s] subfetch download (run %s)\n", now.Format("15:04:05"), shortID(runID))
	fmt.Fprintln(p.w, "配置（生效）:")
	fmt.Fprintf(p.w, "  query: %s\n", truncate(req.Query, 120))
	fmt.Fprintf(p.w, "  provider: %s\n", strings.Join(providers, " -> "))
	fmt.Fprintf(p.w, "  language: %s\n", orAny(string(req.Options.Language)))
	if q := req.Selection.MovieQuery; q != "" {
		fmt.Fprintf(p.w, "  movie: %s\n", truncate(q, 120))
	}
	if q := req.Selection.SubtitleQuery; q != "" {
		fmt.Fprintf(p.w, "  subtitle: %s\n", truncate(q, 120))
	}
	fmt.Fprintf(p.w, "  proxy: %s\n", formatProxy(p.eff.HTTP.ProxyURL))
	fmt.Fprintf(p.w, "  insecure: %s\n", onOff(p.eff.HTTP.InsecureSkipVerify))
	if p.eff.ConfigPath != "" {
		fmt.Fprintf(p.w, "  config: %s\n", p.eff.ConfigPath)
	}
	fmt.Fprintf(p.w, "  out: %s\n\n", p.eff.OutputDir)

	p.lastPrinted = time.Now()
	if !p.tickerStarted {
		p.startTickerLocked()
	}
}

func (p *progressUI) OnStage(provider, stage string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = provider + ":" + stage
	if kind, _ := fields[logging.FieldErrorKind].(string); kind != "" {
		fmt.Fprintf(p.w, "  %s %s: FAIL %s (%s)\n", provider, stageLabel(stage), kind, formatShortDuration(dur))
		p.lastPrinted = time.Now()
		return
	}

	switch stage {
	case run.StageSearch:
		fmt.Fprintf(p.w, "  %s 搜索: movies=%d (%s)\n", provider, intField(fields, "movies"), formatShortDuration(dur))
	case run.StageRankMovies:
		fmt.Fprintf(p.w, "  %s 影片重排: best=%s\n", provider, truncate(stringField(fields, "best"), 80))
	case run.StageListSubtitles:
		fmt.Fprintf(p.w, "  %s 字幕列表: movie=%s subtitles=%d (%s)\n",
			provider, truncate(stringField(fields, "movie"), 60), intField(fields, "subtitles"), formatShortDuration(dur),
		)
	case run.StageRankSubtitles:
		fmt.Fprintf(p.w, "  %s 字幕重排: best=%s\n", provider, truncate(stringField(fields, "best"), 80))
	case run.StageDownload:
		fmt.Fprintf(p.w, "  %s 下载: file=%s texts=%d (%s)\n",
			provider, orAny(stringField(fields, "filename")), intField(fields, "texts"), formatShortDuration(dur),
		)
	default:
		// 兜底：未知阶段也不要静默（便于调试/演进）。
		fmt.Fprintf(p.w, "  %s %s (%s)\n", provider, stage, formatShortDuration(dur))
	}
	p.lastPrinted = time.Now()
}

func (p *progressUI) OnAttemptDone(a run.Attempt, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.attempt++
	if a.Err == nil {
		fmt.Fprintf(p.w, "[%d/%d] %s OK (%s)\n", p.attempt, p.total, a.Provider, formatShortDuration(dur))
	} else {
		fmt.Fprintf(p.w, "[%d/%d] %s FAIL %s: %s (%s)\n",
			p.attempt, p.total, a.Provider, a.Kind, truncate(a.Err.Error(), 160), formatShortDuration(dur),
		)
	}
	p.lastPrinted = time.Now()
}

// Stop 结束 keepalive；可以重复调用。
func (p *progressUI) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tickerStarted {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true
	stop := p.stopCh

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if time.Since(p.lastPrinted) > threshold {
					fmt.Fprintf(p.w, "等待中: at=%s attempt=%d/%d elapsed=%s\n",
						orAny(p.current), p.attempt+1, p.total, formatElapsed(time.Since(p.startedAt)),
					)
					p.lastPrinted = time.Now()
				}
				p.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

func stageLabel(stage string) string {
	switch stage {
	case run.StageSearch:
		return "搜索"
	case run.StageListSubtitles:
		return "字幕列表"
	case run.StageDownload:
		return "下载"
	default:
		return stage
	}
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func orAny(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatProxy(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "off"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "on (" + truncate(raw, 120) + ")"
	}
	auth := "off"
	if u.User != nil {
		auth = "on"
	}
	return fmt.Sprintf("on (%s://%s, auth=%s)", u.Scheme, u.Host, auth)
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

// formatFallbackNote 在首选 provider 失败、由后续 provider 成功时给出一句说明。
func formatFallbackNote(rep domain.DownloadReport) string {
	if len(rep.ProvidersRequested) == 0 || rep.ProviderUsed == "" {
		return ""
	}
	req := strings.ToLower(strings.TrimSpace(rep.ProvidersRequested[0]))
	if req == "" || req == rep.ProviderUsed {
		return ""
	}
	for _, a := range rep.Attempts {
		if a.Provider != req || a.ErrorKind == "" {
			continue
		}
		return " fallback(" + req + " " + a.ErrorKind + ")"
	}
	return " fallback(" + req + ")"
}

func formatAttemptChain(attempts []domain.AttemptResult, max int) string {
	if len(attempts) == 0 || max == 0 {
		return ""
	}
	if max < 0 {
		max = len(attempts)
	}
	parts := make([]string, 0, len(attempts))
	for _, a := range attempts {
		s := strings.TrimSpace(a.Provider) + ":" + a.Status
		if a.ErrorKind != "" {
			s += ":" + a.ErrorKind
		}
		if em := strings.TrimSpace(a.ErrorMsg); em != "" {
			s += ":" + truncate(em, 80)
		}
		parts = append(parts, s)
		if len(parts) >= max {
			break
		}
	}
	return strings.Join(parts, ";")
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func stringField(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return s
}

func intField(fields map[string]any, key string) int {
	if fields == nil {
		return 0
	}
	switch x := fields[key].(type) {
	case int:
		return x
	case int32:
		return int(x)
	case int64:
		return int(x)
	default:
		return 0
	}
}
