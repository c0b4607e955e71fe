// Package output renders CLI results as tables, JSON or YAML.
package output

import (
	"io"
	"strings"

	"github.com/pkg/errors"
)

// Format is an output format.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat parses s; the empty string selects a table.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "table", "":
		return FormatTable, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", errors.Errorf("invalid output format: %q (valid: table, json, yaml)", s)
	}
}

// Print writes data in format f. Tables need a TableRenderer; anything else
// falls back to JSON.
func Print(w io.Writer, f Format, data any) error {
	switch f {
	case FormatTable:
		if r, ok := data.(TableRenderer); ok {
			return PrintTable(w, r)
		}
		return PrintJSON(w, data)
	case FormatJSON:
		return PrintJSON(w, data)
	case FormatYAML:
		return PrintYAML(w, data)
	default:
		return errors.Errorf("unknown format: %s", f)
	}
}
