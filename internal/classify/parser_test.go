package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"surrounded by noise", "noise [BEG]excel, ツール開発[END] trailing", "excel, ツール開発"},
		{"no markers", "excel, ツール開発", ""},
		{"empty", "", ""},
		{"csv fence before end", "[BEG]```csv\nexcel, tool[END]\n```", "excel, tool"},
		{"fence on both sides", "[BEG]```\nExcel, Tool\n```[END]", "excel, tool"},
		{"tagged fence", "[BEG]```text\nword, vba\n```[END]", "word, vba"},
		{"uppercase fence tag", "[BEG]```CSV excel[END]", "excel"},
		{"lowercases", "[BEG]Google App Script, 相談, サポート[END]", "google app script, 相談, サポート"},
		{"trims", "[BEG]  excel  [END]", "excel"},
		{"empty body", "[BEG][END]", ""},
		{"first end wins", "[BEG]a[END]b[END]", "a"},
		{"no dedup or normalization", "[BEG]excel,excel ,  vba[END]", "excel,excel ,  vba"},
		{"begin only", "[BEG]excel", ""},
		{"end before begin", "excel[END] then [BEG]", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Parse(tt.raw))
		})
	}
}

func TestParseOutcome_Status(t *testing.T) {
	assert.Equal(t, ParseResult{Text: "excel", Status: ParseOK}, ParseOutcome("[BEG]excel[END]"))
	assert.Equal(t, ParseResult{Status: ParseMissingBegin}, ParseOutcome("excel[END]"))
	assert.Equal(t, ParseResult{Status: ParseMissingEnd}, ParseOutcome("[BEG]excel"))
	assert.Equal(t, ParseResult{Status: ParseOK}, ParseOutcome("[BEG][END]"))
}

func TestParse_NeverPanics(t *testing.T) {
	for _, raw := range []string{"\xff\xfe[BEG]\xff[END]", "[BEG]```", "```[BEG]```[END]```", "[END][BEG]"} {
		assert.NotPanics(t, func() { _ = Parse(raw) })
	}
}
