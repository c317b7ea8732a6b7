package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/chromedocs/omaha/cmd/omaha/cli/jsonutil"
)

// Output formats accepted by --format.
const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

var errUnknownFormat = errors.New("unknown output format")

// resolveFormat picks the output format. An empty request means a table on
// a terminal and JSON otherwise.
func resolveFormat(w io.Writer, requested string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(requested)); f {
	case formatTable, formatJSON, formatYAML:
		return f, nil
	case "":
		if isTerminal(w) {
			return formatTable, nil
		}
		return formatJSON, nil
	default:
		return "", fmt.Errorf("%w %q (want %s, %s or %s)", errUnknownFormat, requested, formatTable, formatJSON, formatYAML)
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// view is a command result. value is encoded as-is for json and yaml;
// header and rows render the table.
type view struct {
	value  any
	header table.Row
	rows   []table.Row
}

func writeView(w io.Writer, format string, v view) error {
	switch format {
	case formatJSON:
		return jsonutil.Write(w, v.value)
	case formatYAML:
		data, err := yaml.Marshal(v.value)
		if err != nil {
			return fmt.Errorf("encoding yaml: %w", err)
		}
		_, err = w.Write(data)
		return err
	default:
		t := table.NewWriter()
		t.SetOutputMirror(w)
		t.AppendHeader(v.header)
		t.AppendRows(v.rows)
		style := table.StyleLight
		style.Options.DrawBorder = false
		t.SetStyle(style)
		t.Render()
		return nil
	}
}

// orNone renders an empty cell as "none".
func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
