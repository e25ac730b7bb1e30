package quotes

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderer_Render(t *testing.T) {
	base := &Quote{
		ID:     42,
		URL:    "https://example.org/quote/42",
		Text:   "<xxx> hello & bye",
		Date:   time.Date(2020, 5, 17, 0, 0, 0, 0, time.UTC),
		Rating: 120,
	}

	tests := []struct {
		name     string
		opts     RenderOptions
		wantText string
		wantErr  bool
	}{
		{
			name:     "plain",
			opts:     RenderOptions{Quote: base},
			wantText: "#42 | +120\n&lt;xxx&gt; hello &amp; bye",
		},
		{
			name:     "with date and link",
			opts:     RenderOptions{Quote: base, IncludeDate: true, IncludeLinks: true},
			wantText: "<a href=\"https://example.org/quote/42\">#42</a> | 17.05.2020 | +120\n&lt;xxx&gt; hello &amp; bye",
		},
		{
			name: "negative rating and comics",
			opts: RenderOptions{Quote: &Quote{
				ID:     7,
				Text:   "text",
				Rating: -3,
				Comics: []Comics{{URL: "a"}, {URL: "b"}},
			}},
			wantText: "#7 | -3\ntext\n\ncomics: 2",
		},
		{
			name:    "nil quote",
			opts:    RenderOptions{},
			wantErr: true,
		},
	}

	r := NewRenderer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Render(tt.opts)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantText, got)
		})
	}
}
