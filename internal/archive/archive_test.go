package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"testing"

	"github.com/John-Robertt/subfetch/internal/match"
)

type zipEntry struct {
	name string
	body []byte
}

func buildZip(t *testing.T, entries ...zipEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e.name)
		if err != nil {
			t.Fatalf("Create(%q)：%v", e.name, err)
		}
		if e.body != nil {
			if _, err := w.Write(e.body); err != nil {
				t.Fatalf("Write(%q)：%v", e.name, err)
			}
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("Close：%v", err)
	}
	return buf.Bytes()
}

func TestExtract_SingleEntry(t *testing.T) {
	data := buildZip(t, zipEntry{"movie.srt", []byte("hello")})
	got, err := Extract(data, "", match.DefaultOptions())
	if err != nil {
		t.Fatalf("Extract：%v", err)
	}
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("期望 [hello]，实际 %q", got)
	}
}

func TestExtract_PrefersSubtitleEntries(t *testing.T) {
	data := buildZip(t,
		zipEntry{"readme.txt", []byte("ads")},
		zipEntry{"Movie.SRT", []byte("1\n00:00:01,000 --> 00:00:02,000\nhi\n")},
	)
	got, err := Extract(data, "readme", match.DefaultOptions())
	if err != nil {
		t.Fatalf("Extract：%v", err)
	}
	if len(got) != 1 || got[0] == "ads" {
		t.Fatalf("期望只返回 srt 条目，实际 %q", got)
	}
}

func TestExtract_RanksByHint(t *testing.T) {
	data := buildZip(t,
		zipEntry{"a.txt", []byte("A")},
		zipEntry{"b.txt", []byte("B")},
	)
	got, err := Extract(data, "b", match.DefaultOptions())
	if err != nil {
		t.Fatalf("Extract：%v", err)
	}
	if len(got) != 2 || got[0] != "B" {
		t.Fatalf("期望 B 排第一，实际 %q", got)
	}
}

func TestExtract_EmptyHintKeepsArchiveOrder(t *testing.T) {
	data := buildZip(t,
		zipEntry{"second.srt", []byte("2")},
		zipEntry{"first.srt", []byte("1")},
	)
	got, err := Extract(data, "", match.DefaultOptions())
	if err != nil {
		t.Fatalf("Extract：%v", err)
	}
	if len(got) != 2 || got[0] != "2" || got[1] != "1" {
		t.Fatalf("期望保持包内顺序，实际 %q", got)
	}
}

func TestExtract_EmptyArchive(t *testing.T) {
	data := buildZip(t, zipEntry{"subs/", nil})
	_, err := Extract(data, "", match.DefaultOptions())
	var ee *EmptyArchiveError
	if !errors.As(err, &ee) {
		t.Fatalf("期望 EmptyArchiveError，实际 %v", err)
	}
}

func TestExtract_EmptyData(t *testing.T) {
	_, err := Extract(nil, "", match.DefaultOptions())
	var ee *EmptyArchiveError
	if !errors.As(err, &ee) {
		t.Fatalf("期望 EmptyArchiveError，实际 %v", err)
	}
}

func TestExtract_NotAnArchive(t *testing.T) {
	_, err := Extract([]byte("plain subtitle text"), "", match.DefaultOptions())
	if err == nil {
		t.Fatalf("期望报错")
	}
	var ee *EmptyArchiveError
	if errors.As(err, &ee) {
		t.Fatalf("容器损坏不应报 EmptyArchiveError：%v", err)
	}
}

func TestExtractEntries_KeepsNames(t *testing.T) {
	data := buildZip(t, zipEntry{"dir/movie.srt", []byte("x")})
	got, err := ExtractEntries(data, "", match.DefaultOptions())
	if err != nil {
		t.Fatalf("ExtractEntries：%v", err)
	}
	if len(got) != 1 || got[0].Name != "dir/movie.srt" {
		t.Fatalf("条目名不符：%+v", got)
	}
}
