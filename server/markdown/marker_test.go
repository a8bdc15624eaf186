package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInjectCachedMarker(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{
			name:   "PlainParagraph",
			source: "Walking boosts your momentum.",
			want:   "[CACHED CONTENT] Walking boosts your momentum.",
		},
		{
			name:   "HeadingThenParagraph",
			source: "# Daily Insight\n\nWalking boosts your momentum.",
			want:   "# Daily Insight\n\n[CACHED CONTENT] Walking boosts your momentum.",
		},
		{
			name:   "Empty",
			source: "",
			want:   "[CACHED CONTENT]",
		},
		{
			name:   "OnlyHeading",
			source: "# Daily Insight",
			want:   "[CACHED CONTENT]\n\n# Daily Insight",
		},
		{
			name:   "MultipleParagraphsOnlyFirstDecorated",
			source: "First paragraph.\n\nSecond paragraph.",
			want:   "[CACHED CONTENT] First paragraph.\n\nSecond paragraph.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InjectCachedMarker(tt.source))
		})
	}
}

func TestHasCachedMarker(t *testing.T) {
	assert.False(t, HasCachedMarker("fresh content"))
	assert.True(t, HasCachedMarker(InjectCachedMarker("fresh content")))
}
