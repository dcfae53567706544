package domain

import (
	"github.com/John-Robertt/subfetch/internal/language"
	"github.com/John-Robertt/subfetch/internal/match"
)

// QueryOptions 是一次查询的调用方配置，原样传给 provider.Search。
type QueryOptions struct {
	// Language 为空表示不过滤语言。
	Language language.Code
	Match    match.Options
	// LanguageThreshold 是自由文本语言名恢复为代码的最低分；<=0 使用 language.DefaultThreshold。
	LanguageThreshold float64
}

// SubtitleInfo 是字幕候选的站点元信息；两项都可能缺失。
type SubtitleInfo struct {
	Filename string
	Language language.Code
}

// DownloadedFile 是一次下载的最终结果。
// Texts 至少一条；多于一条只发生在压缩包内有多个候选条目时（已按 hint 排序，Texts[0] 最佳）。
type DownloadedFile struct {
	Texts    []string
	Filename string
}

// Text 返回最佳文本。
func (f DownloadedFile) Text() string {
	if len(f.Texts) == 0 {
		return ""
	}
	return f.Texts[0]
}
