package main

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/oliverhu/kdb/record"
)

// parseSchema parses a comma-separated "name:TYPE" list, e.g.
// "id:INT,name:TEXT,bio:TEXT?" (a trailing "?" marks a column nullable).
// The first column is always the primary key and must not be nullable.
func parseSchema(s string) (record.Schema, error) {
	fields := strings.Split(s, ",")
	cols := make([]record.Column, len(fields))
	for i, f := range fields {
		name, typ, nullable, err := parseColumnSpec(f)
		if err != nil {
			return record.Schema{}, err
		}
		if i == 0 && nullable {
			return record.Schema{}, errors.New("kdbtool: the primary key column cannot be nullable")
		}
		cols[i] = record.Column{Name: name, Type: typ, Nullable: nullable}
	}
	return record.Schema{Columns: cols}, nil
}

func parseColumnSpec(f string) (name string, typ record.ColType, nullable bool, err error) {
	parts := strings.SplitN(strings.TrimSpace(f), ":", 2)
	if len(parts) != 2 {
		return "", 0, false, errors.Errorf("kdbtool: malformed column spec %q, want name:TYPE", f)
	}
	name = strings.TrimSpace(parts[0])
	typeStr := strings.TrimSpace(parts[1])
	nullable = strings.HasSuffix(typeStr, "?")
	typeStr = strings.TrimSuffix(typeStr, "?")
	switch strings.ToUpper(typeStr) {
	case "INT", "INTEGER":
		typ = record.Integer
	case "TEXT":
		typ = record.Text
	default:
		return "", 0, false, errors.Errorf("kdbtool: unknown column type %q", typeStr)
	}
	return name, typ, nullable, nil
}

// parseValues parses a comma-separated value list against schema, in
// column order. The literal NULL (case-insensitive) decodes to a nil value
// for a nullable column.
func parseValues(schema record.Schema, s string) ([]any, error) {
	fields := strings.Split(s, ",")
	if len(fields) != len(schema.Columns) {
		return nil, errors.Errorf("kdbtool: expected %d values, got %d", len(schema.Columns), len(fields))
	}
	values := make([]any, len(fields))
	for i, col := range schema.Columns {
		raw := strings.TrimSpace(fields[i])
		if col.Nullable && strings.EqualFold(raw, "NULL") {
			values[i] = nil
			continue
		}
		switch col.Type {
		case record.Integer:
			n, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "kdbtool: parsing %q as INTEGER", raw)
			}
			values[i] = n
		case record.Text:
			values[i] = raw
		default:
			return nil, errors.Errorf("kdbtool: unsupported column type for %q", col.Name)
		}
	}
	return values, nil
}
