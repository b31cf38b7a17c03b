package target

import (
	"fmt"
	"strings"
)

type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type Table struct {
	Name       string   `json:"table_name"`
	Columns    []Column `json:"columns"`
	SampleRows [][]any  `json:"sample_rows"`
}

type Schema struct {
	Dialect string  `json:"dialect"`
	Tables  []Table `json:"tables"`
}

func (s Schema) TableNames() []string {
	names := make([]string, 0, len(s.Tables))
	for _, table := range s.Tables {
		names = append(names, table.Name)
	}
	return names
}

func (s Schema) HasTable(name string) bool {
	for _, table := range s.Tables {
		if strings.EqualFold(table.Name, name) {
			return true
		}
	}
	return false
}

// Describe renders the schema as prompt text: one block per table with
// column types and any sampled rows.
func (s Schema) Describe() string {
	if len(s.Tables) == 0 {
		return "The database has no tables."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Database dialect: %s\n", s.Dialect)
	for _, table := range s.Tables {
		fmt.Fprintf(&b, "\nTable %s:\n", table.Name)
		for _, col := range table.Columns {
			fmt.Fprintf(&b, "  %s %s\n", col.Name, col.Type)
		}
		if len(table.SampleRows) > 0 {
			b.WriteString("  Sample rows:\n")
			for _, row := range table.SampleRows {
				cells := make([]string, 0, len(row))
				for _, cell := range row {
					cells = append(cells, fmt.Sprintf("%v", cell))
				}
				fmt.Fprintf(&b, "    (%s)\n", strings.Join(cells, ", "))
			}
		}
	}
	return b.String()
}
