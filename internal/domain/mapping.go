package domain

// MappingColumn binds one CSV column to a target field path. An empty
// TargetField means the column is ignored.
type MappingColumn struct {
	CSVColumn   string `json:"csv_column"`
	TargetField string `json:"target_field"`
}

// ColumnMapping is the ordered list of column bindings used by one
// import. Stored per supplier as a reusable template, and archived
// verbatim on every job for audit and replay.
type ColumnMapping []MappingColumn

// Targets returns the set of target field paths the mapping resolves,
// skipping ignored columns.
func (m ColumnMapping) Targets() map[string]bool {
	targets := make(map[string]bool, len(m))
	for _, col := range m {
		if col.TargetField != "" {
			targets[col.TargetField] = true
		}
	}
	return targets
}

// Merge overlays other onto m: bindings for CSV columns present in
// other replace the existing ones, new columns are appended. Used when
// auto-archiving a job's mapping into the supplier template.
func (m ColumnMapping) Merge(other ColumnMapping) ColumnMapping {
	merged := make(ColumnMapping, len(m))
	copy(merged, m)

	index := make(map[string]int, len(merged))
	for i, col := range merged {
		index[col.CSVColumn] = i
	}

	for _, col := range other {
		if i, ok := index[col.CSVColumn]; ok {
			merged[i] = col
		} else {
			index[col.CSVColumn] = len(merged)
			merged = append(merged, col)
		}
	}
	return merged
}
