package catalog

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/oliverhu/kdb/record"
)

// jsonSchema is the on-disk JSON shape of a table's schema, stored in the
// catalog row's schema_json column (the same encoding/json plus
// string-typed column the teacher's TableSchema/TableColumn use).
type jsonSchema struct {
	Columns []jsonColumn `json:"columns"`
}

type jsonColumn struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

func marshalSchema(s record.Schema) (string, error) {
	js := jsonSchema{Columns: make([]jsonColumn, len(s.Columns))}
	for i, c := range s.Columns {
		js.Columns[i] = jsonColumn{Name: c.Name, Type: c.Type.String(), Nullable: c.Nullable}
	}
	b, err := json.Marshal(js)
	if err != nil {
		return "", errors.Wrap(err, "catalog: marshaling table schema")
	}
	return string(b), nil
}

func unmarshalSchema(s string) (record.Schema, error) {
	var js jsonSchema
	if err := json.Unmarshal([]byte(s), &js); err != nil {
		return record.Schema{}, errors.Wrap(err, "catalog: unmarshaling table schema")
	}
	cols := make([]record.Column, len(js.Columns))
	for i, c := range js.Columns {
		t, err := colTypeFromString(c.Type)
		if err != nil {
			return record.Schema{}, err
		}
		cols[i] = record.Column{Name: c.Name, Type: t, Nullable: c.Nullable}
	}
	return record.Schema{Columns: cols}, nil
}

func colTypeFromString(s string) (record.ColType, error) {
	switch s {
	case "INTEGER":
		return record.Integer, nil
	case "TEXT":
		return record.Text, nil
	default:
		return record.ColTypeUnknown, errors.Errorf("catalog: unknown column type %q", s)
	}
}
