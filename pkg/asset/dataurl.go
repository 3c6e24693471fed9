// Package asset は生成画像の参照（data URL）とファイル出力を扱います。
package asset

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// DefaultMIMEType は生成サービスが MIME タイプを返さなかった場合の既定値です。
const DefaultMIMEType = "image/png"

var ErrInvalidDataURL = errors.New("invalid data URL")

// Image はデコード済みの画像データです。
type Image struct {
	MIMEType string
	Data     []byte
}

// Extension は MIME タイプに対応する拡張子を返すのだ。
func (i Image) Extension() string {
	switch i.MIMEType {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".png"
	}
}

// EncodeDataURL は画像のバイト列を data:<mime>;base64,... 形式にします。
func EncodeDataURL(mimeType string, data []byte) string {
	if mimeType == "" {
		mimeType = DefaultMIMEType
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURL は base64 の data URL をデコードします。
func DecodeDataURL(ref string) (Image, error) {
	rest, ok := strings.CutPrefix(ref, "data:")
	if !ok {
		return Image{}, fmt.Errorf("%w: missing data: prefix", ErrInvalidDataURL)
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return Image{}, fmt.Errorf("%w: missing comma", ErrInvalidDataURL)
	}
	mimeType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return Image{}, fmt.Errorf("%w: only base64 payloads are supported", ErrInvalidDataURL)
	}
	if mimeType == "" {
		mimeType = DefaultMIMEType
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Image{}, fmt.Errorf("%w: %v", ErrInvalidDataURL, err)
	}
	return Image{MIMEType: mimeType, Data: data}, nil
}
