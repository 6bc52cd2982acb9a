package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeToon(t *testing.T) {
	t.Run("plain values", func(t *testing.T) {
		table := ToonTable{
			Name:   "responses",
			Fields: []string{"label", "response"},
			Rows: [][]string{
				{"Response A", "Go is statically typed."},
				{"Response B", "Go has goroutines."},
			},
		}

		text, err := EncodeToon(table)
		require.NoError(t, err)
		assert.Equal(t, "responses[2]{label,response}:\n  Response A,Go is statically typed.\n  Response B,Go has goroutines.", text)
	})

	t.Run("values with delimiters are quoted", func(t *testing.T) {
		table := ToonTable{
			Name:   "history",
			Fields: []string{"role", "content"},
			Rows: [][]string{
				{"user", "Compare Go, Rust and Zig"},
				{"assistant", "Line one\nline two"},
				{"user", `He said "hello"`},
			},
		}

		text, err := EncodeToon(table)
		require.NoError(t, err)

		decoded, err := DecodeToon(text)
		require.NoError(t, err)
		assert.Equal(t, table, decoded)
	})

	t.Run("leading and trailing spaces survive a round trip", func(t *testing.T) {
		table := ToonTable{
			Name:   "t",
			Fields: []string{"v"},
			Rows:   [][]string{{"  padded  "}},
		}

		text, err := EncodeToon(table)
		require.NoError(t, err)

		decoded, err := DecodeToon(text)
		require.NoError(t, err)
		assert.Equal(t, "  padded  ", decoded.Rows[0][0])
	})

	t.Run("empty table", func(t *testing.T) {
		text, err := EncodeToon(ToonTable{Name: "empty", Fields: []string{"a", "b"}})
		require.NoError(t, err)
		assert.Equal(t, "empty[0]{a,b}:", text)
	})

	t.Run("ragged row is rejected", func(t *testing.T) {
		_, err := EncodeToon(ToonTable{
			Name:   "bad",
			Fields: []string{"a", "b"},
			Rows:   [][]string{{"only one"}},
		})
		assert.Error(t, err)
	})

	t.Run("invalid names are rejected", func(t *testing.T) {
		_, err := EncodeToon(ToonTable{Name: "has,comma", Fields: []string{"a"}})
		assert.Error(t, err)

		_, err = EncodeToon(ToonTable{Name: "ok", Fields: []string{"a{b"}})
		assert.Error(t, err)

		_, err = EncodeToon(ToonTable{Name: "ok", Fields: nil})
		assert.Error(t, err)
	})
}

func TestDecodeToon(t *testing.T) {
	t.Run("malformed header", func(t *testing.T) {
		for _, text := range []string{
			"",
			"noheader",
			"name{a,b}:",
			"name[2]{a,b}",
			"name[x]{a,b}:",
			"[2]{a,b}:",
		} {
			_, err := DecodeToon(text)
			assert.Error(t, err, "input %q", text)
		}
	})

	t.Run("row count mismatch", func(t *testing.T) {
		_, err := DecodeToon("t[2]{a}:\n  one")
		assert.Error(t, err)
	})

	t.Run("unterminated quote", func(t *testing.T) {
		_, err := DecodeToon("t[1]{a}:\n  \"open")
		assert.Error(t, err)
	})

	t.Run("unindented row", func(t *testing.T) {
		_, err := DecodeToon("t[1]{a}:\nnope")
		assert.Error(t, err)
	})
}

func TestEncodeForPrompt(t *testing.T) {
	table := ToonTable{
		Name:   "responses",
		Fields: []string{"label", "response"},
		Rows: [][]string{
			{"Response A", "A moderately long response about the Go programming language."},
			{"Response B", "Another moderately long response about garbage collection."},
		},
	}

	t.Run("compact form is smaller than baseline", func(t *testing.T) {
		payload := EncodeForPrompt(table)
		assert.Less(t, payload.CompressedTokens, payload.BaselineTokens)
		assert.Positive(t, payload.Stats().SavedPercent)
	})

	t.Run("disabled codec falls back to baseline", func(t *testing.T) {
		oldEnabled := ToonEnabled
		ToonEnabled = false
		defer func() { ToonEnabled = oldEnabled }()

		payload := EncodeForPrompt(table)
		assert.Equal(t, payload.BaselineTokens, payload.CompressedTokens)
		assert.Contains(t, payload.Text, `[{"label":"Response A"`)

		stats := payload.Stats()
		assert.Zero(t, stats.SavedPercent)
		assert.False(t, stats.ShowSavings())
	})

	t.Run("encoding failure falls back to baseline", func(t *testing.T) {
		bad := ToonTable{Name: "has,comma", Fields: []string{"a"}, Rows: [][]string{{"v"}}}
		payload := EncodeForPrompt(bad)
		assert.Equal(t, payload.BaselineTokens, payload.CompressedTokens)
		assert.Equal(t, baselineJSON(bad), payload.Text)
	})
}

func TestTokenStats(t *testing.T) {
	t.Run("savings percent", func(t *testing.T) {
		assert.InDelta(t, 25.0, SavingsPercent(100, 75), 0.001)
		assert.InDelta(t, -50.0, SavingsPercent(100, 150), 0.001)
		assert.Zero(t, SavingsPercent(0, 10))
	})

	t.Run("negative savings are clamped in reports", func(t *testing.T) {
		payload := EncodedPayload{BaselineTokens: 100, CompressedTokens: 150}
		stats := payload.Stats()
		assert.Zero(t, stats.SavedPercent)
		assert.Equal(t, 100, stats.BaselineTokens)
		assert.Equal(t, 150, stats.CompressedTokens)
	})

	t.Run("combine recomputes from summed counts", func(t *testing.T) {
		total := CombineTokenStats(
			TokenStats{BaselineTokens: 100, CompressedTokens: 50, SavedPercent: 50},
			TokenStats{BaselineTokens: 100, CompressedTokens: 100, SavedPercent: 0},
		)
		assert.Equal(t, 200, total.BaselineTokens)
		assert.Equal(t, 150, total.CompressedTokens)
		assert.InDelta(t, 25.0, total.SavedPercent, 0.001)
	})

	t.Run("show savings requires enabled codec and positive savings", func(t *testing.T) {
		oldEnabled := ToonEnabled
		defer func() { ToonEnabled = oldEnabled }()

		ToonEnabled = true
		assert.True(t, TokenStats{SavedPercent: 12.5}.ShowSavings())
		assert.False(t, TokenStats{SavedPercent: 0}.ShowSavings())

		ToonEnabled = false
		assert.False(t, TokenStats{SavedPercent: 12.5}.ShowSavings())
	})
}

func TestCountTokens(t *testing.T) {
	if got := CountTokens("12345678"); got != 2 {
		t.Errorf("CountTokens = %d, want 2", got)
	}
	if got := CountTokens(""); got != 0 {
		t.Errorf("CountTokens of empty = %d, want 0", got)
	}
}
