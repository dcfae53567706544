// Package language 维护字幕站点使用的固定语言代码集合，以及 code -> 英文名称的静态对照表。
//
// 站点只给出自由文本语言名（例如 "English"、"Brazilian portuguese"）时，
// 用 Match 把文本模糊匹配回代码。
package language

import (
	"strings"

	"github.com/John-Robertt/subfetch/internal/match"
)

// Code 是语言代码；空串表示未知。
type Code string

// DefaultThreshold 是 Match 接受最佳候选所需的最低相似度。
const DefaultThreshold = 0.6

type entry struct {
	code Code
	name string
}

// 顺序有意义：同分时取靠前的条目，所以通用语言（pt/zh）排在变体（pt-br/zh-tw）之前。
var table = []entry{
	{"an", "Aragonese"},
	{"ar", "Arabic"},
	{"at", "Asturian"},
	{"bg", "Bulgarian"},
	{"br", "Breton"},
	{"ca", "Catalan"},
	{"cs", "Czech"},
	{"da", "Danish"},
	{"de", "German"},
	{"el", "Greek"},
	{"en", "English"},
	{"eo", "Esperanto"},
	{"es", "Spanish"},
	{"et", "Estonian"},
	{"eu", "Basque"},
	{"fa", "Persian"},
	{"fi", "Finnish"},
	{"fr", "French"},
	{"gl", "Galician"},
	{"he", "Hebrew"},
	{"hi", "Hindi"},
	{"hr", "Croatian"},
	{"hu", "Hungarian"},
	{"hy", "Armenian"},
	{"id", "Indonesian"},
	{"is", "Icelandic"},
	{"it", "Italian"},
	{"ja", "Japanese"},
	{"ka", "Georgian"},
	{"km", "Khmer"},
	{"ko", "Korean"},
	{"mk", "Macedonian"},
	{"ms", "Malay"},
	{"nl", "Dutch"},
	{"no", "Norwegian"},
	{"oc", "Occitan"},
	{"pl", "Polish"},
	{"pt", "Portuguese"},
	{"pt-br", "Brazilian Portuguese"},
	{"ro", "Romanian"},
	{"ru", "Russian"},
	{"si", "Sinhala"},
	{"sk", "Slovak"},
	{"sl", "Slovenian"},
	{"sq", "Albanian"},
	{"sr", "Serbian"},
	{"sv", "Swedish"},
	{"th", "Thai"},
	{"tl", "Tagalog"},
	{"tr", "Turkish"},
	{"tt", "Tatar"},
	{"uk", "Ukrainian"},
	{"uz", "Uzbek"},
	{"vi", "Vietnamese"},
	{"zh", "Chinese"},
	{"zh-tw", "Traditional Chinese"},
}

// aliases 只参与 Match，不影响 Name。
var aliases = []entry{
	{"fa", "Farsi"},
	{"pt-br", "Portuguese (Brazil)"},
	{"zh-tw", "Chinese (Traditional)"},
	{"zh", "Chinese (Simplified)"},
	{"no", "Norwegian Bokmal"},
}

var (
	byCode     map[Code]string
	candidates []entry
)

func init() {
	byCode = make(map[Code]string, len(table))
	for _, e := range table {
		byCode[e.code] = e.name
	}
	candidates = append(append([]entry(nil), table...), aliases...)
}

// Parse 校验 s 是否是已知代码（忽略大小写与首尾空白，"_" 视同 "-"）。
func Parse(s string) (Code, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "_", "-")
	if _, ok := byCode[Code(s)]; !ok {
		return "", false
	}
	return Code(s), true
}

// Name 返回代码对应的英文名称；未知代码返回空串。
func (c Code) Name() string { return byCode[c] }

// Known 报告 c 是否在固定代码集合内。
func (c Code) Known() bool {
	_, ok := byCode[c]
	return ok
}

// Codes 按表顺序返回全部已知代码。
func Codes() []Code {
	out := make([]Code, 0, len(table))
	for _, e := range table {
		out = append(out, e.code)
	}
	return out
}

// Match 把站点给出的自由文本语言名恢复为代码。
//
// 文本本身就是已知代码时直接接受；否则对静态表（含别名）双向打分：
// 名称在文本中（"Persian" 对 "Farsi/Persian"）与文本在名称中取较高者，
// 同分时另一方向分数高者优先（"Portuguese" 选 pt 而不是 pt-br）。
// 只有最佳分数 >= threshold 才接受，否则视为“语言未知”（返回 "", false）。
// threshold <= 0 时使用 DefaultThreshold。
func Match(label string, opts match.Options, threshold float64) (Code, bool) {
	label = strings.TrimSpace(label)
	if label == "" {
		return "", false
	}
	if c, ok := Parse(label); ok {
		return c, true
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	opts.Threshold = 0
	var best Code
	hi, lo := -1.0, -1.0
	for _, e := range candidates {
		fwd := match.Score(label, e.name, opts)
		rev := match.Score(e.name, label, opts)
		h, l := max(fwd, rev), min(fwd, rev)
		if h > hi || (h == hi && l > lo) {
			best, hi, lo = e.code, h, l
		}
	}
	if best == "" || hi < threshold {
		return "", false
	}
	return best, true
}
