package provider

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/John-Robertt/subfetch/internal/archive"
	"github.com/John-Robertt/subfetch/internal/domain"
)

// Download 解析 locator、拉取 payload 并还原为字幕文本。
//
// 流程：
// 1) Resolve（首次成功后记忆）
// 2) GET 下载地址；非 2xx => *NetworkError
// 3) 文件名：Resolution.Filename > Info.Filename > Content-Disposition
// 4) IsArchive=false：payload 原样作为唯一文本
// 5) IsArchive=true：解压；容器不可读时再按纯文本严格解码一次，仍失败 => *ArchiveExtractionError
func (s *Subtitle) Download(ctx context.Context, c *http.Client) (domain.DownloadedFile, error) {
	r, err := s.Resolve(ctx, c)
	if err != nil {
		return domain.DownloadedFile{}, err
	}

	body, hdr, err := Get(ctx, c, r.URL, r.Header)
	if err != nil {
		return domain.DownloadedFile{}, err
	}

	filename := firstNonEmpty(r.Filename, s.Info.Filename, filenameFromHeader(hdr))

	if !s.IsArchive {
		return domain.DownloadedFile{Texts: []string{string(body)}, Filename: filename}, nil
	}

	hint := firstNonEmpty(s.Info.Filename, filename)
	opts := s.queryOptions().Match
	texts, aerr := archive.Extract(body, hint, opts)
	if aerr == nil {
		return domain.DownloadedFile{Texts: texts, Filename: filename}, nil
	}

	// 容器可读但没有条目：不是“站点把纯文本当成压缩包”，不走兜底。
	var empty *archive.EmptyArchiveError
	if errors.As(aerr, &empty) {
		return domain.DownloadedFile{}, aerr
	}

	text, terr := archive.DecodeStrict(body)
	if terr != nil {
		return domain.DownloadedFile{}, &ArchiveExtractionError{ArchiveErr: aerr, TextErr: terr}
	}
	return domain.DownloadedFile{Texts: []string{text}, Filename: filename}, nil
}

func filenameFromHeader(h http.Header) string {
	if h == nil {
		return ""
	}
	cd := strings.TrimSpace(h.Get("Content-Disposition"))
	if cd == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(cd)
	if err != nil {
		return ""
	}
	name := strings.TrimSpace(params["filename"])
	if name == "" {
		return ""
	}
	// 只保留 basename，防止站点给出带目录的名字。
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	return name
}

func firstNonEmpty(ss ...string) string {
	for _, s := range ss {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}
