package table

type SchemaEntry struct {
	Name string `json:"name"`
	Type Type   `json:"type"`
}

// Schema is the ordered column listing handed to the prompt builder.
type Schema []SchemaEntry

func Describe(t *Table) Schema {
	schema := make(Schema, 0, t.NumColumns())
	if t == nil {
		return schema
	}
	for _, column := range t.Columns {
		schema = append(schema, SchemaEntry{Name: column.Name, Type: column.Type})
	}
	return schema
}

// Lines renders one "<column>: <type>" line per entry.
func (s Schema) Lines() []string {
	lines := make([]string, 0, len(s))
	for _, entry := range s {
		lines = append(lines, entry.Name+": "+string(entry.Type))
	}
	return lines
}
