package titleid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "already clean",
			raw:  "BLES00799",
			want: "BLES00799",
		},
		{
			name: "lowercase with dash",
			raw:  "bles-00799",
			want: "BLES00799",
		},
		{
			name: "spaces",
			raw:  "BLES 00799",
			want: "BLES00799",
		},
		{
			name: "underscores and tabs",
			raw:  "\tnpua_80662 ",
			want: "NPUA80662",
		},
		{
			name: "empty input",
			raw:  "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Clean(tt.raw)
			assert.Equal(t, tt.want, got)

			// Cleaning is idempotent.
			assert.Equal(t, got, Clean(got))
		})
	}
}

func TestNormalize(t *testing.T) {
	t.Run("accepts canonical variants", func(t *testing.T) {
		for _, raw := range []string{"bles-00799", "BLES 00799", "BLES00799"} {
			got, err := Normalize(raw)
			require.NoError(t, err)
			assert.Equal(t, "BLES00799", got)
		}
	})

	t.Run("rejects invalid forms", func(t *testing.T) {
		for _, raw := range []string{
			"",
			"BLES0079",   // too short
			"BLES007991", // too long
			"1LES00799",  // digit in prefix
			"BLESA0799",  // letter in numeric part
			"!!!",        // cleans to empty
		} {
			_, err := Normalize(raw)
			assert.ErrorIs(t, err, ErrInvalidTitleID, "raw=%q", raw)
		}
	})

	t.Run("separators anywhere are stripped", func(t *testing.T) {
		got, err := Normalize("BLES-007-99")
		require.NoError(t, err)
		assert.Equal(t, "BLES00799", got)
	})
}
