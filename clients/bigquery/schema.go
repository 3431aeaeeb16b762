package bigquery

import (
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
)

var fieldTypes = map[string]bigquery.FieldType{
	"STRING":     bigquery.StringFieldType,
	"BYTES":      bigquery.BytesFieldType,
	"INTEGER":    bigquery.IntegerFieldType,
	"INT64":      bigquery.IntegerFieldType,
	"FLOAT":      bigquery.FloatFieldType,
	"FLOAT64":    bigquery.FloatFieldType,
	"BOOLEAN":    bigquery.BooleanFieldType,
	"BOOL":       bigquery.BooleanFieldType,
	"TIMESTAMP":  bigquery.TimestampFieldType,
	"DATE":       bigquery.DateFieldType,
	"TIME":       bigquery.TimeFieldType,
	"DATETIME":   bigquery.DateTimeFieldType,
	"NUMERIC":    bigquery.NumericFieldType,
	"BIGNUMERIC": bigquery.BigNumericFieldType,
	"GEOGRAPHY":  bigquery.GeographyFieldType,
	"JSON":       bigquery.JSONFieldType,
}

// ParseSchema turns `name:TYPE[:MODE],...` into a schema. MODE is one of NULLABLE, REQUIRED or REPEATED.
// An empty string is a valid, empty schema.
func ParseSchema(text string) (bigquery.Schema, error) {
	schema := bigquery.Schema{}
	if strings.TrimSpace(text) == "" {
		return schema, nil
	}

	seen := make(map[string]bool)
	for _, part := range strings.Split(text, ",") {
		pieces := strings.Split(strings.TrimSpace(part), ":")
		if len(pieces) < 2 || len(pieces) > 3 {
			return nil, fmt.Errorf("malformed column definition %q, expected name:TYPE[:MODE]", part)
		}

		name := strings.TrimSpace(pieces[0])
		if name == "" {
			return nil, fmt.Errorf("malformed column definition %q, column name is empty", part)
		}

		if seen[strings.ToLower(name)] {
			return nil, fmt.Errorf("duplicate column %q", name)
		}
		seen[strings.ToLower(name)] = true

		fieldType, ok := fieldTypes[strings.ToUpper(strings.TrimSpace(pieces[1]))]
		if !ok {
			return nil, fmt.Errorf("unsupported column type %q for column %q", pieces[1], name)
		}

		field := &bigquery.FieldSchema{Name: name, Type: fieldType}
		if len(pieces) == 3 {
			switch strings.ToUpper(strings.TrimSpace(pieces[2])) {
			case "NULLABLE":
			case "REQUIRED":
				field.Required = true
			case "REPEATED":
				field.Repeated = true
			default:
				return nil, fmt.Errorf("unsupported column mode %q for column %q", pieces[2], name)
			}
		}

		schema = append(schema, field)
	}

	return schema, nil
}

func fieldMode(field *bigquery.FieldSchema) string {
	switch {
	case field.Repeated:
		return "REPEATED"
	case field.Required:
		return "REQUIRED"
	default:
		return "NULLABLE"
	}
}
