package domain

import (
	"encoding/json"
	"time"
)

const (
	StatusDownloaded = "downloaded"
	StatusFailed     = "failed"
)

// 错误类别：对外稳定（report.json / HTTP API 的 kind 字段）。
const (
	KindNoMovies          = "no_movies"
	KindNoSubtitles       = "no_subtitles"
	KindNoLocator         = "no_locator"
	KindNetwork           = "network"
	KindEmptyArchive      = "empty_archive"
	KindArchiveExtraction = "archive_extraction"
	KindFetchFailed       = "fetch_failed"
	KindCanceled          = "canceled"
	KindTimeout           = "timeout"
	KindConfigNotFound    = "config_not_found"
	KindConfigInvalid     = "config_invalid"
	KindIOFailed          = "io_failed"
)

// DownloadReport 是 CLI 非 TTY 模式下输出到 stdout 的 JSON 结构。
type DownloadReport struct {
	RunID    string `json:"run_id"`
	Query    string `json:"query"`
	Language string `json:"language"`

	ProvidersRequested []string `json:"providers_requested"`
	ProviderUsed       string   `json:"provider_used"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Status    string `json:"status"`
	ErrorKind string `json:"error_kind"`
	ErrorMsg  string `json:"error_msg"`

	Filename string   `json:"filename"`
	Outputs  []string `json:"outputs"`
	Texts    int      `json:"texts"`

	Attempts []AttemptResult `json:"attempts"`
}

// AttemptResult 是单个 provider 的尝试结果；顺序即尝试顺序。
type AttemptResult struct {
	Provider  string `json:"provider"`
	Status    string `json:"status"`
	ErrorKind string `json:"error_kind"`
	ErrorMsg  string `json:"error_msg"`
}

// Finalize 做三件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) nil 切片规范成空切片，输出固定为 [] 而不是 null
// 3) status 由 provider_used 推出
func (r *DownloadReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	if r.ProvidersRequested == nil {
		r.ProvidersRequested = []string{}
	}
	if r.Outputs == nil {
		r.Outputs = []string{}
	}
	if r.Attempts == nil {
		r.Attempts = []AttemptResult{}
	}

	if r.ProviderUsed != "" && r.ErrorKind == "" {
		r.Status = StatusDownloaded
	} else {
		r.Status = StatusFailed
	}
}

// MarshalJSON 仅用于集中约束输出的稳定性（避免未来不小心引入非确定字段）。
func (r DownloadReport) MarshalJSON() ([]byte, error) {
	type Alias DownloadReport
	return json.Marshal(Alias(r))
}
