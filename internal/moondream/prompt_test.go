package moondream

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyPrompt(t *testing.T) {
	tests := []struct {
		name   string
		prompt string
		want   Command
	}{
		{
			name:   "caption lowercase",
			prompt: "generate caption",
			want:   Command{Kind: KindCaption},
		},
		{
			name:   "caption mixed case",
			prompt: "Generate Caption",
			want:   Command{Kind: KindCaption},
		},
		{
			name:   "caption uppercase",
			prompt: "GENERATE CAPTION",
			want:   Command{Kind: KindCaption},
		},
		{
			name:   "caption with trailing space is a question",
			prompt: "generate caption ",
			want:   Command{Kind: KindQuestion, Question: "generate caption "},
		},
		{
			name:   "detect simple",
			prompt: "detect: red car",
			want:   Command{Kind: KindDetect, Object: "red car"},
		},
		{
			name:   "detect uppercase prefix",
			prompt: "DETECT: red car",
			want:   Command{Kind: KindDetect, Object: "red car"},
		},
		{
			name:   "detect preserves label case",
			prompt: "Detect: Red Car",
			want:   Command{Kind: KindDetect, Object: "Red Car"},
		},
		{
			name:   "detect trims remainder",
			prompt: "detect:   big red car  ",
			want:   Command{Kind: KindDetect, Object: "big red car"},
		},
		{
			name:   "detect empty remainder",
			prompt: "detect:",
			want:   Command{Kind: KindDetect, Object: ""},
		},
		{
			name:   "detect whitespace remainder",
			prompt: "detect:    ",
			want:   Command{Kind: KindDetect, Object: ""},
		},
		{
			name:   "question verbatim",
			prompt: "What color is the car?",
			want:   Command{Kind: KindQuestion, Question: "What color is the car?"},
		},
		{
			name:   "question containing detect elsewhere",
			prompt: "can you detect: things?",
			want:   Command{Kind: KindQuestion, Question: "can you detect: things?"},
		},
		{
			name:   "empty prompt",
			prompt: "",
			want:   Command{Kind: KindQuestion, Question: ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyPrompt(tt.prompt))
		})
	}
}

func TestCommandKind_String(t *testing.T) {
	assert.Equal(t, "caption", KindCaption.String())
	assert.Equal(t, "detect", KindDetect.String())
	assert.Equal(t, "question", KindQuestion.String())
}
