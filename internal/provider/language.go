package provider

import (
	"github.com/John-Robertt/subfetch/internal/domain"
	"github.com/John-Robertt/subfetch/internal/language"
)

// RecoverLanguage 把站点给出的语言文本（代码或自由文本名称）恢复为已知代码；
// 置信度不足返回空代码（语言未知）。各站点共用同一套规则。
func RecoverLanguage(label string, opts domain.QueryOptions) language.Code {
	c, ok := language.Match(label, opts.Match, opts.LanguageThreshold)
	if !ok {
		return ""
	}
	return c
}

// WantLanguage 报告字幕语言 got 是否满足查询的语言过滤（未设置过滤时总是满足）。
func WantLanguage(opts domain.QueryOptions, got language.Code) bool {
	return opts.Language == "" || opts.Language == got
}

// WantRecoveredLanguage 用于语言由自由文本恢复而来的站点：
// 恢复失败（got 为空）时保留，只丢弃确定不符的语言。
func WantRecoveredLanguage(opts domain.QueryOptions, got language.Code) bool {
	return got == "" || WantLanguage(opts, got)
}
