package archive

import (
	"bytes"
	"errors"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// ErrNotText 表示 payload 不是合法的 UTF-8 文本。
var ErrNotText = errors.New("payload 不是合法的 UTF-8 文本")

// DecodeText 宽松解码压缩包条目：
// UTF-8（去 BOM）> 带 BOM 的 UTF-16 > Windows-1252（老字幕文件最常见的非 UTF-8 编码）。
func DecodeText(b []byte) (string, error) {
	switch {
	case bytes.HasPrefix(b, bomUTF8):
		b = b[len(bomUTF8):]
	case bytes.HasPrefix(b, bomUTF16LE), bytes.HasPrefix(b, bomUTF16BE):
		out, err := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder().Bytes(b)
		if err != nil {
			return "", err
		}
		return string(out), nil
	}
	if utf8.Valid(b) {
		return string(b), nil
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// DecodeStrict 严格按 UTF-8 解码，字节原样返回（BOM 也保留），非法字节直接报错。
// 用于“站点把纯文本标成压缩包”时的兜底。
func DecodeStrict(b []byte) (string, error) {
	if !utf8.Valid(b) {
		return "", ErrNotText
	}
	return string(b), nil
}
