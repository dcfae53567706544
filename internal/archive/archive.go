// Package archive 把字幕站点返回的 zip 压缩包还原成一个或多个字幕文本。
package archive

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/John-Robertt/subfetch/internal/match"
)

// SubtitleExt 是优先选择的条目扩展名。
const SubtitleExt = ".srt"

// maxEntrySize 限制单个条目解压后的大小，拒绝解压炸弹。
const maxEntrySize = 32 << 20

// EmptyArchiveError 表示压缩包能读，但没有任何非目录条目。
type EmptyArchiveError struct{}

func (e *EmptyArchiveError) Error() string { return "压缩包内没有可用条目" }

// Entry 是一个已解码的压缩包条目。
type Entry struct {
	Name string
	Text string
}

// Extract 返回候选条目解码后的文本（排序后的完整列表，调用方决定只用第一条还是查看其余）。
//
// 选择规则：
// - 只看非目录条目；优先 SubtitleExt，没有则退回全部条目
// - 只剩一个候选：直接返回，不排序
// - 多个候选：以 hint（通常是文件名）对条目名做模糊排序；hint 为空时保持包内顺序
func Extract(data []byte, hint string, opts match.Options) ([]string, error) {
	entries, err := ExtractEntries(data, hint, opts)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Text)
	}
	return out, nil
}

// ExtractEntries 与 Extract 相同，但保留条目名。
// 空数据视为空压缩包。
func ExtractEntries(data []byte, hint string, opts match.Options) ([]Entry, error) {
	if len(data) == 0 {
		return nil, &EmptyArchiveError{}
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("读取压缩包失败：%w", err)
	}

	files := make([]*zip.File, 0, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") {
			continue
		}
		files = append(files, f)
	}
	if len(files) == 0 {
		return nil, &EmptyArchiveError{}
	}

	cands := make([]*zip.File, 0, len(files))
	for _, f := range files {
		if strings.EqualFold(path.Ext(f.Name), SubtitleExt) {
			cands = append(cands, f)
		}
	}
	if len(cands) == 0 {
		cands = files
	}

	if len(cands) > 1 {
		opts.Threshold = 0
		cands = match.Rank(hint, cands, func(f *zip.File) string { return f.Name }, opts)
	}

	out := make([]Entry, 0, len(cands))
	for _, f := range cands {
		text, err := readEntry(f)
		if err != nil {
			return nil, fmt.Errorf("读取条目 %q 失败：%w", f.Name, err)
		}
		out = append(out, Entry{Name: f.Name, Text: text})
	}
	return out, nil
}

func readEntry(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	b, err := io.ReadAll(io.LimitReader(rc, maxEntrySize+1))
	if err != nil {
		return "", err
	}
	if len(b) > maxEntrySize {
		return "", fmt.Errorf("条目超过 %d 字节", maxEntrySize)
	}
	return DecodeText(b)
}
