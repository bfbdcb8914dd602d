// Package visuals renders platform records as horizontal tables, vertical
// key/value tables or JSON. Every renderer takes an explicit field list so
// the column set and its naming are fixed per command.
package visuals

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"strings"
	"text/tabwriter"
)

// Placeholder is shown for null, missing and empty values in tables
const Placeholder = "N/a"

// Record is a flattened platform record keyed by API field name
type Record map[string]any

// Field selects a record key for output. Rename, when set, replaces the
// derived table heading and the JSON key.
type Field struct {
	Key    string
	Rename string
}

// F is shorthand for a field without rename
func F(key string) Field {
	return Field{Key: key}
}

// Heading is the table column heading for the field
func (f Field) Heading() string {
	if f.Rename != "" {
		return f.Rename
	}
	return strings.ToUpper(strings.ReplaceAll(f.Key, "_", " "))
}

// JSONKey is the key used for the field in JSON output
func (f Field) JSONKey() string {
	if f.Rename != "" {
		return f.Rename
	}
	return f.Key
}

// Horizontal writes one row per record under a heading row
func Horizontal(w io.Writer, records []Record, fields []Field) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	headings := make([]string, len(fields))
	for i, f := range fields {
		headings[i] = f.Heading()
	}
	fmt.Fprintln(tw, strings.Join(headings, "\t"))

	for _, rec := range records {
		cells := make([]string, len(fields))
		for i, f := range fields {
			cells[i] = cell(FormatValue(rec[f.Key]))
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}

	return tw.Flush()
}

// Vertical writes one "HEADING:  value" line per field of a single record
func Vertical(w io.Writer, rec Record, fields []Field) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, f := range fields {
		fmt.Fprintf(tw, "%s:\t%s\n", f.Heading(), cell(FormatValue(rec[f.Key])))
	}
	return tw.Flush()
}

// JSON writes the records as an indented JSON array containing exactly the
// selected fields in order. Null values stay null.
func JSON(w io.Writer, records []Record, fields []Field) error {
	picked := make([]orderedRecord, len(records))
	for i, rec := range records {
		picked[i] = orderedRecord{rec: rec, fields: fields}
	}

	data, err := json.MarshalIndent(picked, "", "    ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

type orderedRecord struct {
	rec    Record
	fields []Field
}

func (o orderedRecord) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range o.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.JSONKey())
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(o.rec[f.Key])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// FormatValue renders a single value for table output. Null, typed-nil and
// empty values become the placeholder.
func FormatValue(v any) string {
	if v == nil {
		return Placeholder
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Placeholder
		}
		return FormatValue(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		if rv.Len() == 0 {
			return Placeholder
		}
		parts := make([]string, rv.Len())
		for i := range parts {
			parts[i] = FormatValue(rv.Index(i).Interface())
		}
		return strings.Join(parts, ", ")
	case reflect.Map:
		if rv.IsNil() || rv.Len() == 0 {
			return Placeholder
		}
	}

	var s string
	switch val := v.(type) {
	case string:
		s = val
	case fmt.Stringer:
		s = val.String()
	default:
		s = fmt.Sprint(val)
	}
	if s == "" {
		return Placeholder
	}
	return s
}

// tabwriter treats tabs and newlines as cell and row separators
func cell(s string) string {
	return strings.NewReplacer("\t", " ", "\r\n", " ", "\n", " ").Replace(s)
}
