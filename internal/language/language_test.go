package language

import (
	"testing"

	"github.com/John-Robertt/subfetch/internal/match"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		want Code
		ok   bool
	}{
		{"en", "en", true},
		{" EN ", "en", true},
		{"pt_BR", "pt-br", true},
		{"zh-TW", "zh-tw", true},
		{"xx", "", false},
		{"", "", false},
	}
	for _, c := range cases {
		got, ok := Parse(c.in)
		if got != c.want || ok != c.ok {
			t.Fatalf("Parse(%q) 期望 (%q,%v)，实际 (%q,%v)", c.in, c.want, c.ok, got, ok)
		}
	}
}

func TestName(t *testing.T) {
	if n := Code("en").Name(); n != "English" {
		t.Fatalf("期望 English，实际 %q", n)
	}
	if n := Code("xx").Name(); n != "" {
		t.Fatalf("未知代码应返回空串，实际 %q", n)
	}
	if len(Codes()) != len(table) {
		t.Fatalf("Codes 数量不一致")
	}
}

func TestMatch(t *testing.T) {
	opts := match.DefaultOptions()
	cases := []struct {
		label string
		want  Code
		ok    bool
	}{
		{"English", "en", true},
		{"english ", "en", true},
		{"fr", "fr", true},
		{"Portuguese", "pt", true},
		{"Brazilian portuguese", "pt-br", true},
		{"Chinese", "zh", true},
		{"Engish", "en", true},
		{"Farsi/Persian", "fa", true},
		{"Portuguese (Brazil)", "pt-br", true},
		{"Chinese (Traditional)", "zh-tw", true},
		{"Serbian (Latin)", "sr", true},
		{"Norwegian Bokmal", "no", true},
		{"English SDH", "en", true},
		{"Klingon", "", false},
		{"", "", false},
	}
	for _, c := range cases {
		got, ok := Match(c.label, opts, 0)
		if got != c.want || ok != c.ok {
			t.Fatalf("Match(%q) 期望 (%q,%v)，实际 (%q,%v)", c.label, c.want, c.ok, got, ok)
		}
	}
}
