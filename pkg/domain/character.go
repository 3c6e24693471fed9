package domain

import "strings"

// Character は台本から抽出された登場人物と、その外見の描写を保持します。
// Name が検索キーで、レビュー中に書き換えられるのは Description だけなのだ。
type Character struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Characters はレビュー順を保ったキャラクターの一覧です。
type Characters []Character

// Find は名前を大文字小文字を区別せずに検索するのだ。
func (cs Characters) Find(name string) (Character, bool) {
	key := normalizeKey(name)
	for i := len(cs) - 1; i >= 0; i-- {
		if normalizeKey(cs[i].Name) == key {
			return cs[i], true
		}
	}
	return Character{}, false
}

// DescriptionsFor はパネルに登場する名前から外見描写を引き当てます。
// 一致しない名前や描写が空のキャラクターは黙って読み飛ばすのだ。
func (cs Characters) DescriptionsFor(names []string) []string {
	index := make(map[string]string, len(cs))
	for _, c := range cs {
		index[normalizeKey(c.Name)] = c.Description
	}

	descs := make([]string, 0, len(names))
	for _, name := range names {
		if d := index[normalizeKey(name)]; d != "" {
			descs = append(descs, d)
		}
	}
	return descs
}

// Clone はスライスのコピーを返します。
func (cs Characters) Clone() Characters {
	if cs == nil {
		return nil
	}
	out := make(Characters, len(cs))
	copy(out, cs)
	return out
}

// String はキャラクターの情報を文字列で返すのだ。
func (c Character) String() string {
	return c.Name
}

func normalizeKey(s string) string {
	return strings.ToLower(s)
}
