package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
)

// TOON (Token-Oriented Object Notation) is the compact tabular form used to
// carry stage payloads into the next stage's prompt:
//
//	responses[2]{label,response}:
//	  Response A,Go is a statically typed language.
//	  Response B,"Compiled, concurrent, garbage collected."
//
// Values containing delimiters are Go-quoted. The baseline serialization for
// token accounting is the canonical JSON array-of-objects form of the same
// table.

// ToonTable is a named uniform table: one field list, one row of values per
// record.
type ToonTable struct {
	Name   string
	Fields []string
	Rows   [][]string
}

// EncodedPayload is the codec output: the prompt text plus token counts for
// the baseline and compact serializations.
type EncodedPayload struct {
	Text             string
	BaselineTokens   int
	CompressedTokens int
}

func validToonName(name string) bool {
	if name == "" || name != strings.TrimSpace(name) {
		return false
	}
	return !strings.ContainsAny(name, ",\"[]{}:\n\r")
}

// EncodeToon serializes a table into TOON form. Tables with ragged rows or
// delimiter-bearing names are rejected so the caller can fall back.
func EncodeToon(table ToonTable) (string, error) {
	if !validToonName(table.Name) {
		return "", fmt.Errorf("invalid table name %q", table.Name)
	}
	if len(table.Fields) == 0 {
		return "", fmt.Errorf("table %s has no fields", table.Name)
	}
	for _, field := range table.Fields {
		if !validToonName(field) {
			return "", fmt.Errorf("invalid field name %q", field)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s[%d]{%s}:", table.Name, len(table.Rows), strings.Join(table.Fields, ","))

	for _, row := range table.Rows {
		if len(row) != len(table.Fields) {
			return "", fmt.Errorf("row has %d values, want %d", len(row), len(table.Fields))
		}
		b.WriteString("\n  ")
		for i, value := range row {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(encodeToonValue(value))
		}
	}

	return b.String(), nil
}

func encodeToonValue(value string) string {
	if strings.ContainsAny(value, ",\"\n\r") || value != strings.TrimSpace(value) {
		return strconv.Quote(value)
	}
	return value
}

// DecodeToon parses TOON text back into a table. The declared row count must
// match the rows present.
func DecodeToon(text string) (ToonTable, error) {
	lines := strings.Split(text, "\n")
	header := lines[0]

	open := strings.IndexByte(header, '[')
	closeIdx := strings.IndexByte(header, ']')
	braceOpen := strings.IndexByte(header, '{')
	braceClose := strings.IndexByte(header, '}')
	if open < 1 || closeIdx < open || braceOpen != closeIdx+1 || braceClose < braceOpen ||
		!strings.HasSuffix(header, ":") || braceClose != len(header)-2 {
		return ToonTable{}, fmt.Errorf("malformed TOON header: %q", header)
	}

	count, err := strconv.Atoi(header[open+1 : closeIdx])
	if err != nil || count < 0 {
		return ToonTable{}, fmt.Errorf("malformed TOON row count in %q", header)
	}

	table := ToonTable{
		Name:   header[:open],
		Fields: strings.Split(header[braceOpen+1:braceClose], ","),
		Rows:   make([][]string, 0, count),
	}

	for _, line := range lines[1:] {
		if !strings.HasPrefix(line, "  ") {
			return ToonTable{}, fmt.Errorf("malformed TOON row: %q", line)
		}
		row, err := splitToonRow(line[2:])
		if err != nil {
			return ToonTable{}, err
		}
		if len(row) != len(table.Fields) {
			return ToonTable{}, fmt.Errorf("row has %d values, want %d", len(row), len(table.Fields))
		}
		table.Rows = append(table.Rows, row)
	}

	if len(table.Rows) != count {
		return ToonTable{}, fmt.Errorf("TOON declares %d rows, found %d", count, len(table.Rows))
	}

	return table, nil
}

func splitToonRow(line string) ([]string, error) {
	var row []string
	for pos := 0; ; {
		if pos < len(line) && line[pos] == '"' {
			end := pos + 1
			for end < len(line) {
				if line[end] == '\\' {
					end += 2
					continue
				}
				if line[end] == '"' {
					break
				}
				end++
			}
			if end >= len(line) {
				return nil, fmt.Errorf("unterminated quoted value in %q", line)
			}
			value, err := strconv.Unquote(line[pos : end+1])
			if err != nil {
				return nil, fmt.Errorf("bad quoted value in %q: %w", line, err)
			}
			row = append(row, value)
			pos = end + 1
			if pos == len(line) {
				return row, nil
			}
			if line[pos] != ',' {
				return nil, fmt.Errorf("expected comma after quoted value in %q", line)
			}
			pos++
			continue
		}

		next := strings.IndexByte(line[pos:], ',')
		if next < 0 {
			row = append(row, line[pos:])
			return row, nil
		}
		row = append(row, line[pos:pos+next])
		pos += next + 1
	}
}

// baselineJSON renders the table in its canonical JSON form: an array of
// objects with the table's field order preserved.
func baselineJSON(table ToonTable) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, row := range table.Rows {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('{')
		for j, field := range table.Fields {
			if j > 0 {
				b.WriteByte(',')
			}
			key, _ := json.Marshal(field)
			b.Write(key)
			b.WriteByte(':')
			value := ""
			if j < len(row) {
				value = row[j]
			}
			encoded, _ := json.Marshal(value)
			b.Write(encoded)
		}
		b.WriteByte('}')
	}
	b.WriteByte(']')
	return b.String()
}

// CountTokens estimates token usage as one token per four characters, the
// same approximation the accounting uses everywhere.
func CountTokens(text string) int {
	return len(text) / 4
}

// EncodeForPrompt encodes a table for inclusion in a prompt. When the codec
// is disabled or encoding fails it falls back to the baseline serialization
// with compressed == baseline; the fallback never aborts the pipeline.
func EncodeForPrompt(table ToonTable) EncodedPayload {
	baseline := baselineJSON(table)
	baselineTokens := CountTokens(baseline)

	if !ToonEnabled {
		return EncodedPayload{Text: baseline, BaselineTokens: baselineTokens, CompressedTokens: baselineTokens}
	}

	text, err := EncodeToon(table)
	if err != nil {
		log.Printf("TOON encoding failed, falling back to JSON: %v", err)
		return EncodedPayload{Text: baseline, BaselineTokens: baselineTokens, CompressedTokens: baselineTokens}
	}

	return EncodedPayload{Text: text, BaselineTokens: baselineTokens, CompressedTokens: CountTokens(text)}
}

// SavingsPercent is the raw savings figure; negative on payloads where the
// compact form is larger than the baseline.
func SavingsPercent(baselineTokens, compressedTokens int) float64 {
	if baselineTokens <= 0 {
		return 0
	}
	return (1 - float64(compressedTokens)/float64(baselineTokens)) * 100
}

// Stats reports the payload's token accounting with the savings percentage
// floored at zero and rounded to one decimal place.
func (p EncodedPayload) Stats() TokenStats {
	saved := SavingsPercent(p.BaselineTokens, p.CompressedTokens)
	if saved < 0 {
		saved = 0
	}
	return TokenStats{
		BaselineTokens:   p.BaselineTokens,
		CompressedTokens: p.CompressedTokens,
		SavedPercent:     math.Round(saved*10) / 10,
	}
}

// CombineTokenStats totals per-stage savings into a single report. The
// percentage is recomputed from the summed token counts, not averaged.
func CombineTokenStats(stats ...TokenStats) TokenStats {
	var total TokenStats
	for _, s := range stats {
		total.BaselineTokens += s.BaselineTokens
		total.CompressedTokens += s.CompressedTokens
	}
	saved := SavingsPercent(total.BaselineTokens, total.CompressedTokens)
	if saved < 0 {
		saved = 0
	}
	total.SavedPercent = math.Round(saved*10) / 10
	return total
}

// ShowSavings is the display condition for compression savings: the codec is
// enabled and the payload actually got smaller.
func (s TokenStats) ShowSavings() bool {
	return ToonEnabled && s.SavedPercent > 0
}
