package domain

import "testing"

func TestLayout_Valid(t *testing.T) {
	for _, l := range Layouts() {
		if !l.Valid() {
			t.Errorf("%s はカタログにあるのだ", l)
		}
	}
	if Layout("3x3").Valid() {
		t.Error("カタログに無いタグは無効のはずなのだ")
	}
}

func TestLayout_Capacity(t *testing.T) {
	tests := []struct {
		layout Layout
		want   int
	}{
		{Layout2x1, 2},
		{Layout1x2, 2},
		{Layout2x2, 4},
		{Layout3StripVertical, 3},
		{Layout2Over1, 3},
		{Layout1Over2, 3},
		{"unknown", 1},
	}
	for _, tt := range tests {
		t.Run(string(tt.layout), func(t *testing.T) {
			if got := tt.layout.Capacity(); got != tt.want {
				t.Errorf("期待 %d, 実際 %d", tt.want, got)
			}
		})
	}
}

func TestComicPages_PanelCount(t *testing.T) {
	pages := ComicPages{
		{Layout: Layout2x1, Panels: []Panel{{}, {}}},
		{Layout: Layout1x2},
		{Layout: Layout2x2, Panels: []Panel{{}}},
	}
	if got := pages.PanelCount(); got != 3 {
		t.Errorf("コマの総数は3のはずなのだ: %d", got)
	}
}
