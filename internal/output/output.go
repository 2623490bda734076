// Package output renders command results as text, JSON or YAML.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// Format represents an output format.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// TextRenderer is implemented by results with their own text layout.
type TextRenderer interface {
	RenderText(w io.Writer) error
}

// Field is one labelled line of a text report.
type Field struct {
	Label string
	Value any
}

// Fields renders as aligned "label: value" lines. Nil values are skipped.
type Fields []Field

// RenderText implements TextRenderer.
func (f Fields) RenderText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)
	for _, field := range f {
		if field.Value == nil {
			continue
		}
		if _, err := fmt.Fprintf(tw, "%s:\t%v\n", field.Label, field.Value); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// Writer handles output in the specified format.
type Writer struct {
	format Format
	w      io.Writer
}

// NewWriter creates a new output writer.
func NewWriter(w io.Writer, format Format) *Writer {
	return &Writer{format: format, w: w}
}

// Format returns the configured format.
func (w *Writer) Format() Format {
	return w.format
}

// Write outputs v in the configured format. In text format v is rendered
// through TextRenderer or fmt.Stringer when it implements them.
func (w *Writer) Write(v any) error {
	switch w.format {
	case FormatJSON:
		enc := json.NewEncoder(w.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(w.w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}

	switch t := v.(type) {
	case TextRenderer:
		return t.RenderText(w.w)
	case fmt.Stringer:
		_, err := fmt.Fprintln(w.w, t.String())
		return err
	default:
		_, err := fmt.Fprintf(w.w, "%+v\n", v)
		return err
	}
}

// Messagef prints a human-readable line. It is a no-op for structured
// formats so their output stays machine-readable.
func (w *Writer) Messagef(format string, args ...any) {
	if w.format != FormatText {
		return
	}
	_, _ = fmt.Fprintf(w.w, format+"\n", args...)
}

// ParseFormat parses a format string into a Format.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "text", "":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown format: %s", s)
	}
}
