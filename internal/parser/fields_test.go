package parser

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"5/3/2024", "2024-05-03"},
		{"05/03/2024", "2024-05-03"},
		{"12/31/2023", "2023-12-31"},
		{"2024-05-03", "2024-05-03"},
		{" 2024-05-03 ", "2024-05-03"},
		{"not a date", "not a date"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeDate(tt.in))
		})
	}
}

func TestNormalizeTime(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"09:31:00", "09:31:00"},
		{"9:31:00", "09:31:00"},
		{"1:05:09 PM", "13:05:09"},
		{"12:00:00 AM", "00:00:00"},
		{"11:59:59pm", "23:59:59"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeTime(tt.in))
		})
	}
}

func TestFieldReader_Money(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"$25.00", 25},
		{"-$10.00", -10},
		{"$-10.00", -10},
		{"($10.50)", -10.5},
		{"$1,234.56", 1234.56},
		{"17.5", 17.5},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			f := &fieldReader{}
			assert.Equal(t, tt.want, f.money(tt.in))
			assert.Equal(t, 0, f.malformed)
		})
	}
}

func TestFieldReader_Malformed(t *testing.T) {
	f := &fieldReader{}

	assert.Equal(t, 0.0, f.float("abc"))
	assert.Equal(t, 0.0, f.money("$"))
	assert.Equal(t, 0, f.int("twelve"))
	assert.Equal(t, 12, f.int("12.0"))
	assert.Equal(t, 3, f.malformed)
}

func TestFieldReader_NonFinite(t *testing.T) {
	tests := []string{"NaN", "nan", "Inf", "+Inf", "-Infinity", "infinity"}

	for _, in := range tests {
		t.Run(in, func(t *testing.T) {
			f := &fieldReader{}
			assert.Equal(t, 0.0, f.float(in))
			assert.Equal(t, 0.0, f.money("$"+in))
			assert.Equal(t, 0, f.int(in))
			assert.Equal(t, 3, f.malformed)
		})
	}
}

func TestCompressLog_RoundTrip(t *testing.T) {
	compressed, truncated, err := CompressLog(twoTradeLog)
	require.NoError(t, err)
	assert.False(t, truncated)

	text, err := DecompressLog(compressed)
	require.NoError(t, err)
	assert.Equal(t, twoTradeLog, text)

	empty, err := DecompressLog(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = DecompressLog([]byte("not gzip"))
	assert.Error(t, err)
}

func TestCompressLog_Truncates(t *testing.T) {
	// Pseudo-random text does not compress well.
	var b strings.Builder
	seed := uint32(1)
	for b.Len() < 3*MaxLogSize {
		seed = seed*1664525 + 1013904223
		b.WriteByte(byte('!' + seed>>24%90))
	}
	text := b.String()

	compressed, truncated, err := CompressLog(text)
	require.NoError(t, err)
	assert.True(t, truncated)
	assert.LessOrEqual(t, len(compressed), MaxLogSize)

	out, err := DecompressLog(compressed)
	require.NoError(t, err)
	assert.Contains(t, out, truncationMarker)
	assert.True(t, strings.HasPrefix(text, out[:100]))
	assert.True(t, strings.HasSuffix(text, out[len(out)-100:]))
}

func TestCompressLog_TruncatesOnRuneBoundaries(t *testing.T) {
	var b strings.Builder
	seed := uint32(7)
	for b.Len() < 3*MaxLogSize {
		seed = seed*1664525 + 1013904223
		b.WriteRune(rune('\u00c0' + seed>>24%200))
	}
	text := b.String()

	compressed, truncated, err := CompressLog(text)
	require.NoError(t, err)
	assert.True(t, truncated)

	out, err := DecompressLog(compressed)
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(out))
	assert.Contains(t, out, truncationMarker)
}

func TestTruncateMiddle(t *testing.T) {
	text := strings.Repeat("é", 10) // 20 bytes

	out := truncateMiddle(text, 5)
	assert.True(t, utf8.ValidString(out))
	assert.Equal(t, "éé"+truncationMarker+"éé", out)

	assert.Equal(t, text, truncateMiddle(text, 10))
}
