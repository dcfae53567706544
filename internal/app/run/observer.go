package run

import "time"

// 阶段名：对外稳定（日志 stage 字段与进度输出）。
const (
	StageSearch        = "search"
	StageRankMovies    = "rank_movies"
	StageListSubtitles = "list_subtitles"
	StageRankSubtitles = "rank_subtitles"
	StageDownload      = "download"
)

// Observer 用于把“阶段/尝试结果”从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
// - Observer 的实现必须并发安全：server 模式下多个请求共享同一个 Observer。
type Observer interface {
	// OnStart 在一次运行开始时调用；providers 为计划尝试的顺序。
	OnStart(runID string, req Request, providers []string)
	// OnStage 在某个 provider 的某个阶段结束时调用（失败的阶段也会调用，fields 带 error_kind）。
	OnStage(provider, stage string, fields map[string]any, dur time.Duration)
	// OnAttemptDone 在单个 provider 的整条流程结束时调用。
	OnAttemptDone(a Attempt, dur time.Duration)
}

type nopObserver struct{}

func (nopObserver) OnStart(string, Request, []string)                     {}
func (nopObserver) OnStage(string, string, map[string]any, time.Duration) {}
func (nopObserver) OnAttemptDone(Attempt, time.Duration)                  {}
