package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type table struct {
	headers []string
	rows    [][]string
}

func (t table) Headers() []string { return t.headers }
func (t table) Rows() [][]string  { return t.rows }

var sample = table{
	headers: []string{"ID", "MODE"},
	rows:    [][]string{{"github", "full"}, {"jira, cloud", "readonly"}},
}

func TestParseOutputFormat(t *testing.T) {
	for in, want := range map[string]OutputFormat{"": FormatText, "JSON": FormatJSON, "csv": FormatCSV, "text": FormatText} {
		got, err := ParseOutputFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseOutputFormat("junit")
	assert.Error(t, err)
}

func TestTextFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewFormatter(FormatText).FormatTo(&buf, sample))
	assert.Equal(t, "ID           MODE\ngithub       full\njira, cloud  readonly\n", buf.String())

	buf.Reset()
	require.NoError(t, NewFormatter(FormatText).FormatTo(&buf, "plain"))
	assert.Equal(t, "plain\n", buf.String())
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewFormatter(FormatJSON).FormatTo(&buf, map[string]string{"github": "full"}))
	assert.JSONEq(t, `{"github":"full"}`, buf.String())
	assert.Contains(t, buf.String(), "\n  ", "indented")
}

func TestCSVFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewFormatter(FormatCSV).FormatTo(&buf, sample))
	assert.Equal(t, "ID,MODE\ngithub,full\n\"jira, cloud\",readonly\n", buf.String())

	assert.Error(t, NewFormatter(FormatCSV).FormatTo(&buf, 42))
}
