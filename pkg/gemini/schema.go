package gemini

import "google.golang.org/genai"

// 応答スキーマ。モデルにこの形の JSON だけを返させるのだ。
var (
	characterSchema = &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"characters": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"name":        {Type: genai.TypeString},
						"description": {Type: genai.TypeString},
					},
					Required: []string{"name", "description"},
				},
			},
		},
		Required: []string{"characters"},
	}

	sceneSchema = &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"scenes": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"id":          {Type: genai.TypeString},
						"description": {Type: genai.TypeString},
					},
					Required: []string{"id", "description"},
				},
			},
		},
		Required: []string{"scenes"},
	}

	panelSchema = &genai.Schema{
		Type: genai.TypeArray,
		Items: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"sceneId": {
					Type:        genai.TypeString,
					Description: "The scene heading this panel belongs to.",
				},
				"description": {
					Type:        genai.TypeString,
					Description: "A detailed visual description of the comic panel.",
				},
				"characters": {
					Type:        genai.TypeArray,
					Items:       &genai.Schema{Type: genai.TypeString},
					Description: "A list of character names present in the panel.",
				},
				"shotType": {
					Type:        genai.TypeString,
					Description: "The camera perspective for the panel.",
				},
			},
			Required: []string{"sceneId", "description", "characters", "shotType"},
		},
	}

	layoutSchema = &genai.Schema{
		Type: genai.TypeArray,
		Items: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"panel_indices": {
					Type:  genai.TypeArray,
					Items: &genai.Schema{Type: genai.TypeInteger},
				},
				"layout": {Type: genai.TypeString},
			},
			Required: []string{"panel_indices", "layout"},
		},
	}
)
