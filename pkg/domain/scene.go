package domain

// Scene は台本のシーン見出しと、その場所の視覚的な描写です。
type Scene struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// Scenes はレビュー順を保ったシーンの一覧です。
type Scenes []Scene

// DescriptionFor は見出しを大文字小文字を区別せずに検索し、描写を返します。
// 見つからない場合は空文字列なのだ。
func (ss Scenes) DescriptionFor(id string) string {
	key := normalizeKey(id)
	desc := ""
	for _, s := range ss {
		if normalizeKey(s.ID) == key {
			desc = s.Description
		}
	}
	return desc
}

// Clone はスライスのコピーを返します。
func (ss Scenes) Clone() Scenes {
	if ss == nil {
		return nil
	}
	out := make(Scenes, len(ss))
	copy(out, ss)
	return out
}
