// Package match 按规范化后的字符串相似度对候选重新排序（影片消歧、字幕文件消歧、压缩包条目选择共用）。
package match

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Options 调整模糊匹配的打分方式。
//
// 规范化（忽略大小写、忽略符号、折叠空白）是固定行为，不提供开关：
// 站点数据噪音很大，任何一项关掉都会让排序明显变差。
type Options struct {
	// Threshold 是最低分（0..1）。0 表示“全部返回，只排序”，而不是过滤。
	Threshold float64
	// Transpositions 让相邻字符互换只算一次编辑（Damerau）。
	Transpositions bool
	// WholeString 关闭子串匹配，按整串编辑距离打分。
	WholeString bool
}

// DefaultOptions 返回子串匹配 + 相邻互换的默认打分方式。
func DefaultOptions() Options {
	return Options{Transpositions: true}
}

// Result 是一条带分数的排序结果。
type Result[T any] struct {
	Item  T
	Key   string
	Score float64
}

// Rank 按与 query 的相似度对 items 重新排序（高分在前），分数相同时保持输入顺序。
// query 规范化后为空时原样返回（拷贝）。
func Rank[T any](query string, items []T, key func(T) string, opts Options) []T {
	scored := RankScored(query, items, key, opts)
	out := make([]T, 0, len(scored))
	for _, r := range scored {
		out = append(out, r.Item)
	}
	return out
}

// RankScored 与 Rank 相同，但保留每条结果的 key 与分数。
func RankScored[T any](query string, items []T, key func(T) string, opts Options) []Result[T] {
	out := make([]Result[T], 0, len(items))
	q := []rune(Normalize(query))
	if len(q) == 0 {
		for _, it := range items {
			out = append(out, Result[T]{Item: it, Key: key(it)})
		}
		return out
	}

	for _, it := range items {
		k := key(it)
		s := score(q, []rune(Normalize(k)), opts)
		if opts.Threshold > 0 && s < opts.Threshold {
			continue
		}
		out = append(out, Result[T]{Item: it, Key: k, Score: s})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// Score 返回 query 与 candidate 规范化后的相似度（0..1）。
func Score(query, candidate string, opts Options) float64 {
	q := []rune(Normalize(query))
	if len(q) == 0 {
		return 0
	}
	return score(q, []rune(Normalize(candidate)), opts)
}

// Normalize 做固定的规范化：去掉变音符号、case fold、删除符号/标点、折叠空白。
func Normalize(s string) string {
	// transform.Chain 与 cases.Caser 都有内部状态，不能跨 goroutine 共享，这里每次新建。
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if out, _, err := transform.String(t, s); err == nil {
		s = out
	}
	s = cases.Fold().String(s)

	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			space = true
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		}
	}
	return b.String()
}

// score 用 Sellers 算法求 q 在 c 中最佳子串的编辑距离（WholeString 时为整串距离），
// 再换算为 0..1 的相似度。
func score(q, c []rune, opts Options) float64 {
	m, n := len(q), len(c)
	if m == 0 {
		return 0
	}

	prev2 := make([]int, n+1)
	prev := make([]int, n+1)
	cur := make([]int, n+1)
	for j := range prev {
		if opts.WholeString {
			prev[j] = j
		}
	}

	for i := 1; i <= m; i++ {
		cur[0] = i
		for j := 1; j <= n; j++ {
			cost := 1
			if q[i-1] == c[j-1] {
				cost = 0
			}
			v := min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
			if opts.Transpositions && i > 1 && j > 1 && q[i-1] == c[j-2] && q[i-2] == c[j-1] {
				v = min(v, prev2[j-2]+1)
			}
			cur[j] = v
		}
		prev2, prev, cur = prev, cur, prev2
	}

	dist, denom := prev[n], m
	if opts.WholeString {
		denom = max(m, n)
	} else {
		for _, d := range prev {
			dist = min(dist, d)
		}
	}
	s := 1 - float64(dist)/float64(denom)
	if s < 0 {
		return 0
	}
	return s
}
