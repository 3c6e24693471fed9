package domain

import "time"

// ProjectData は保存時に永続化層へ渡す完成作品のペイロードです。
type ProjectData struct {
	Title         string      `json:"title"`
	Script        string      `json:"script"`
	ArtStyle      ArtStyle    `json:"artStyle"`
	AspectRatio   AspectRatio `json:"aspectRatio"`
	Characters    Characters  `json:"characters"`
	Scenes        Scenes      `json:"scenes"`
	ComicPages    ComicPages  `json:"comicPages"`
	CoverImageURL string      `json:"coverImageUrl,omitempty"`
}

// Project は保存済みの作品です。保存後は更新されず、削除のみ可能なのだ。
type Project struct {
	ProjectData
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Clone はスライスを含めたディープコピーを返します。
func (d ProjectData) Clone() ProjectData {
	d.Characters = d.Characters.Clone()
	d.Scenes = d.Scenes.Clone()
	d.ComicPages = d.ComicPages.Clone()
	return d
}

// User は認証済みユーザーの情報です。
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}
