package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownArtStyle     = errors.New("unknown art style")
	ErrInvalidAspectRatio  = errors.New("invalid aspect ratio")
	ErrIncompleteGenConfig = errors.New("generation config is incomplete")
)

// ArtStyle は画像生成プロンプトに差し込む画風の定義です。
type ArtStyle struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ImageURL string `json:"imageUrl"`
	Prompt   string `json:"prompt"`
}

// DefaultArtStyleID は画風が指定されなかった場合に選ばれる ID です。
const DefaultArtStyleID = "classic-american"

const styleImageBase = "https://storage.googleapis.com/makerflow-prod.appspot.com/media/images/"

var artStyles = []ArtStyle{
	{
		ID:       "classic-american",
		Name:     "Classic American",
		ImageURL: styleImageBase + "classic-american.webp",
		Prompt:   "classic American comic book art style, bold inks, vibrant colors, dynamic action poses, reminiscent of the Silver Age of comics.",
	},
	{
		ID:       "manga",
		Name:     "Manga",
		ImageURL: styleImageBase + "manga.webp",
		Prompt:   "Japanese manga style, black and white, detailed emotional expressions, dynamic panel layouts, screentones for shading, sharp lines.",
	},
	{
		ID:       "film-noir",
		Name:     "Film Noir",
		ImageURL: styleImageBase + "film-noir.webp",
		Prompt:   "film noir comic style, high-contrast black and white, dramatic shadows, gritty textures, cinematic angles, mysterious atmosphere.",
	},
	{
		ID:       "indie",
		Name:     "Indie",
		ImageURL: styleImageBase + "indie.webp",
		Prompt:   "indie comic art style, quirky character designs, unconventional color palettes, hand-drawn feel, expressive and simple lines.",
	},
	{
		ID:       "sci-fi",
		Name:     "Sci-Fi",
		ImageURL: styleImageBase + "sci-fi.webp",
		Prompt:   "hard science fiction comic art, detailed technology, sleek futuristic designs, clean lines, cool color palette with neon highlights.",
	},
}

// ArtStyles は画風カタログのコピーを返すのだ。
func ArtStyles() []ArtStyle {
	return append([]ArtStyle(nil), artStyles...)
}

// FindArtStyle は ID から画風を引きます。
func FindArtStyle(id string) (ArtStyle, error) {
	for _, s := range artStyles {
		if strings.EqualFold(s.ID, strings.TrimSpace(id)) {
			return s, nil
		}
	}
	return ArtStyle{}, fmt.Errorf("%w: %q", ErrUnknownArtStyle, id)
}

// AspectRatio はパネル画像の縦横比です。
type AspectRatio string

const (
	AspectSquare    AspectRatio = "1:1"
	AspectPortrait  AspectRatio = "3:4"
	AspectLandscape AspectRatio = "4:3"

	// CoverAspectRatio は表紙に使う固定の縦横比なのだ。
	CoverAspectRatio = AspectPortrait
)

// ParseAspectRatio は文字列を AspectRatio に変換します。空文字列は 3:4 として扱うのだ。
func ParseAspectRatio(s string) (AspectRatio, error) {
	switch AspectRatio(strings.TrimSpace(s)) {
	case "":
		return AspectPortrait, nil
	case AspectSquare:
		return AspectSquare, nil
	case AspectPortrait:
		return AspectPortrait, nil
	case AspectLandscape:
		return AspectLandscape, nil
	}
	return "", fmt.Errorf("%w: %q (1:1, 3:4, 4:3 のいずれかを指定してください)", ErrInvalidAspectRatio, s)
}

// GenerationConfig は1回の生成で固定されるユーザーの選択です。
type GenerationConfig struct {
	Style       ArtStyle    `json:"artStyle"`
	AspectRatio AspectRatio `json:"aspectRatio"`
}

// NewGenerationConfig は画風 ID と縦横比の文字列から生成設定を組み立てます。
// 画風が空なら DefaultArtStyleID、縦横比が空なら 3:4 なのだ。
func NewGenerationConfig(styleID, aspect string) (GenerationConfig, error) {
	if strings.TrimSpace(styleID) == "" {
		styleID = DefaultArtStyleID
	}
	style, err := FindArtStyle(styleID)
	if err != nil {
		return GenerationConfig{}, err
	}
	ratio, err := ParseAspectRatio(aspect)
	if err != nil {
		return GenerationConfig{}, err
	}
	return GenerationConfig{Style: style, AspectRatio: ratio}, nil
}

// Validate は画風と縦横比が揃っているかを確認するのだ。
func (c GenerationConfig) Validate() error {
	if c.Style.Prompt == "" {
		return fmt.Errorf("%w: art style prompt is empty", ErrIncompleteGenConfig)
	}
	if _, err := ParseAspectRatio(string(c.AspectRatio)); err != nil || c.AspectRatio == "" {
		return fmt.Errorf("%w: aspect ratio %q", ErrIncompleteGenConfig, c.AspectRatio)
	}
	return nil
}
