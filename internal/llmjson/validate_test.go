package llmjson

import (
	"strings"
	"testing"
)

var pointSchema = map[string]any{
	"type":     "object",
	"required": []string{"points"},
	"properties": map[string]any{
		"points": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []string{"x", "y"},
				"properties": map[string]any{
					"x": map[string]any{"type": "integer"},
					"y": map[string]any{"type": "integer"},
				},
			},
		},
	},
}

type points struct {
	Points []struct {
		X int `json:"x"`
		Y int `json:"y"`
	} `json:"points"`
}

func TestDecode(t *testing.T) {
	v := MustValidator(pointSchema)

	tests := []struct {
		name    string
		content string
		wantErr string
		wantLen int
	}{
		{name: "plain", content: `{"points":[{"x":1,"y":2}]}`, wantLen: 1},
		{name: "fenced", content: "```json\n{\"points\":[{\"x\":1,\"y\":2},{\"x\":3,\"y\":4}]}\n```", wantLen: 2},
		{name: "not json", content: "sorry, I cannot help", wantErr: "unmarshal"},
		{name: "missing field", content: `{"points":[{"x":1}]}`, wantErr: "schema"},
		{name: "wrong type", content: `{"points":[{"x":"1","y":2}]}`, wantErr: "schema"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out points
			err := v.Decode(tt.content, &out)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Decode() error = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if len(out.Points) != tt.wantLen {
				t.Errorf("len(points) = %d, want %d", len(out.Points), tt.wantLen)
			}
		})
	}
}

func TestStripCodeFence(t *testing.T) {
	if got := StripCodeFence("```\n[1]\n```"); got != "[1]" {
		t.Errorf("StripCodeFence() = %q", got)
	}
	if got := StripCodeFence("  {}  "); got != "{}" {
		t.Errorf("StripCodeFence() = %q", got)
	}
}
