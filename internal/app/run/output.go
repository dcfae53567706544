package run

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/John-Robertt/subfetch/internal/archive"
	"github.com/John-Robertt/subfetch/internal/domain"
	"github.com/John-Robertt/subfetch/internal/infra/fsx"
)

// 这些扩展名说明文件名描述的是压缩包而不是字幕本身，落盘时换成 .srt。
var containerExts = map[string]bool{
	".zip": true,
	".rar": true,
	".7z":  true,
	".gz":  true,
}

var subtitleExts = map[string]bool{
	".srt": true,
	".ass": true,
	".ssa": true,
	".sub": true,
	".vtt": true,
	".txt": true,
}

// OutputNames 计算落盘文件名：第一条文本用 <stem><ext>，
// all=true 时其余文本依次为 <stem>.2<ext>、<stem>.3<ext> ...
func OutputNames(f domain.DownloadedFile, fallback string, all bool) []string {
	name := fsx.SafeName(f.Filename, fsx.SafeName(fallback, "subtitle"))
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	switch e := strings.ToLower(ext); {
	case containerExts[e]:
		ext = archive.SubtitleExt
	case !subtitleExts[e]:
		// 站点给的是 release 名（例如 Movie.2020.1080p），整个当作 stem。
		stem, ext = name, archive.SubtitleExt
	}
	if stem == "" {
		stem = "subtitle"
	}

	n := 1
	if all {
		n = len(f.Texts)
	}
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if i == 0 {
			out = append(out, stem+ext)
			continue
		}
		out = append(out, fmt.Sprintf("%s.%d%s", stem, i+1, ext))
	}
	return out
}

// WriteOutputs 把下载结果原子写入 dir，返回写入的绝对路径。
// overwrite=false 时目标已存在返回 os.ErrExist（已写入的文件保留）。
func WriteOutputs(dir string, f domain.DownloadedFile, fallback string, all, overwrite bool) ([]string, error) {
	if len(f.Texts) == 0 {
		return nil, fmt.Errorf("没有可写入的字幕文本")
	}
	dir = filepath.Clean(dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("创建输出目录失败：%w", err)
	}

	write := fsx.WriteFileAtomicNoOverwrite
	if overwrite {
		write = fsx.WriteFileAtomic
	}

	names := OutputNames(f, fallback, all)
	written := make([]string, 0, len(names))
	for i, name := range names {
		if err := write(dir, name, []byte(f.Texts[i])); err != nil {
			return written, fmt.Errorf("写入 %s 失败：%w", name, err)
		}
		abs, err := filepath.Abs(filepath.Join(dir, name))
		if err != nil {
			abs = filepath.Join(dir, name)
		}
		written = append(written, abs)
	}
	return written, nil
}
