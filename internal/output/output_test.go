package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatTable, "TABLE": FormatTable, " json ": FormatJSON, "yml": FormatYAML} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFormat("xml")
	assert.Error(t, err)
}

func TestPrintTable(t *testing.T) {
	table := NewTableData("Name", "Hint")
	table.AddRow("era", "4")
	table.AddRow("lru", "0")

	var buf bytes.Buffer
	require.NoError(t, PrintTable(&buf, table))
	out := buf.String()
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "HINT")
	assert.Contains(t, out, "era")
	assert.Contains(t, out, "lru")
}

func TestSimpleTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, SimpleTable(&buf, [][2]string{{"Stack", "era+lru"}, {"Hint", "4"}}))
	assert.Contains(t, buf.String(), "era+lru")
	assert.Contains(t, buf.String(), "Stack")
}

func TestPrint_Formats(t *testing.T) {
	data := struct {
		Name string `json:"name" yaml:"name"`
	}{"era+lru"}

	var js bytes.Buffer
	require.NoError(t, Print(&js, FormatJSON, data))
	assert.JSONEq(t, `{"name":"era+lru"}`, js.String())

	var ym bytes.Buffer
	require.NoError(t, Print(&ym, FormatYAML, data))
	assert.Equal(t, "name: era+lru\n", ym.String())

	// non-renderers fall back to JSON
	var tb bytes.Buffer
	require.NoError(t, Print(&tb, FormatTable, data))
	assert.JSONEq(t, `{"name":"era+lru"}`, tb.String())
}
