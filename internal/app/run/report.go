package run

import (
	"time"

	"github.com/John-Robertt/subfetch/internal/domain"
	"github.com/John-Robertt/subfetch/internal/provider"
)

// BuildReport 把一次 DownloadFirst 的结果收敛为对外稳定的 DownloadReport。
// err 为 DownloadFirst 返回的错误；outputs 为已写入的文件路径（可能为空）。
func BuildReport(req Request, providers []string, out Outcome, err error, outputs []string, started, finished time.Time) domain.DownloadReport {
	r := domain.DownloadReport{
		RunID:              out.RunID,
		Query:              req.Query,
		Language:           string(req.Options.Language),
		ProvidersRequested: append([]string(nil), providers...),
		StartedAt:          started,
		FinishedAt:         finished,
		Outputs:            outputs,
		Attempts:           make([]domain.AttemptResult, 0, len(out.Attempts)),
	}

	for _, a := range out.Attempts {
		ar := domain.AttemptResult{Provider: a.Provider, Status: domain.StatusDownloaded}
		if a.Err != nil {
			ar.Status = domain.StatusFailed
			ar.ErrorKind = a.Kind
			ar.ErrorMsg = a.Err.Error()
		}
		r.Attempts = append(r.Attempts, ar)
	}

	if err != nil {
		r.ErrorKind = provider.Kind(err)
		r.ErrorMsg = err.Error()
	} else {
		r.ProviderUsed = out.Result.Provider
		r.Filename = out.Result.File.Filename
		r.Texts = len(out.Result.File.Texts)
	}

	r.Finalize()
	return r
}

// FailReport 用于运行前就失败的情况（配置、写盘等），kind 由调用方给出。
func FailReport(req Request, providers []string, runID, kind string, err error, started, finished time.Time) domain.DownloadReport {
	r := domain.DownloadReport{
		RunID:              runID,
		Query:              req.Query,
		Language:           string(req.Options.Language),
		ProvidersRequested: append([]string(nil), providers...),
		StartedAt:          started,
		FinishedAt:         finished,
		ErrorKind:          kind,
	}
	if err != nil {
		r.ErrorMsg = err.Error()
	}
	r.Finalize()
	return r
}
