package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/elitan/schemasync/database"
)

// ComputeSchemaHash generates a deterministic hash of a schema. The hash
// covers every entity kind the model understands, so any declared change
// - a new table, a widened column, a renamed trigger - produces a
// different hash. Apply uses it to detect drift between the schema a
// plan was generated against and the schema the target database has now.
func ComputeSchemaHash(schema *database.Schema) (string, error) {
	normalized, err := normalizeSchema(schema)
	if err != nil {
		return "", fmt.Errorf("failed to normalize schema: %w", err)
	}

	hash := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(hash[:]), nil
}

func normalizeSchema(s *database.Schema) (string, error) {
	if s == nil {
		return `{"tables":[]}`, nil
	}

	normalized := map[string]interface{}{
		"tables": normalizeTables(s.Tables),
	}
	if len(s.Schemas) > 0 {
		normalized["schemas"] = normalizeNamed(s.Schemas, func(o database.SchemaObject) (string, map[string]interface{}) {
			return o.Name, map[string]interface{}{"name": o.Name, "owner": o.Owner}
		})
	}
	if len(s.Extensions) > 0 {
		normalized["extensions"] = normalizeNamed(s.Extensions, func(e database.Extension) (string, map[string]interface{}) {
			return e.Name, map[string]interface{}{"name": e.Name, "schema": e.Schema, "version": e.Version}
		})
	}
	if len(s.Enums) > 0 {
		normalized["enums"] = normalizeNamed(s.Enums, func(e database.EnumType) (string, map[string]interface{}) {
			return e.Name, map[string]interface{}{"name": e.Name, "values": e.Values}
		})
	}
	if len(s.Sequences) > 0 {
		normalized["sequences"] = normalizeNamed(s.Sequences, func(sq database.Sequence) (string, map[string]interface{}) {
			return sq.Name, map[string]interface{}{
				"name": sq.Name, "increment": sq.Increment, "min_value": sq.MinValue,
				"max_value": sq.MaxValue, "start": sq.Start, "cache": sq.Cache, "cycle": sq.Cycle,
			}
		})
	}
	if len(s.Views) > 0 {
		normalized["views"] = normalizeNamed(s.Views, func(v database.View) (string, map[string]interface{}) {
			return v.Name, map[string]interface{}{
				"name": v.Name, "definition": normalizeWhitespace(v.Definition), "materialized": v.Materialized,
			}
		})
	}
	if len(s.Functions) > 0 {
		normalized["functions"] = normalizeNamed(s.Functions, func(f database.Function) (string, map[string]interface{}) {
			return f.Name, map[string]interface{}{
				"name": f.Name, "return_type": f.ReturnType, "language": f.Language,
				"body": normalizeWhitespace(f.Body),
			}
		})
	}
	if len(s.Procedures) > 0 {
		normalized["procedures"] = normalizeNamed(s.Procedures, func(p database.Procedure) (string, map[string]interface{}) {
			return p.Name, map[string]interface{}{
				"name": p.Name, "language": p.Language, "body": normalizeWhitespace(p.Body),
			}
		})
	}
	if len(s.Triggers) > 0 {
		normalized["triggers"] = normalizeNamed(s.Triggers, func(t database.Trigger) (string, map[string]interface{}) {
			events := append([]string(nil), t.Events...)
			sort.Strings(events)
			return t.Table + "." + t.Name, map[string]interface{}{
				"name": t.Name, "table": t.Table, "timing": t.Timing, "events": events,
				"function": t.FunctionName,
			}
		})
	}
	if len(s.Comments) > 0 {
		normalized["comments"] = normalizeNamed(s.Comments, func(c database.Comment) (string, map[string]interface{}) {
			return c.ObjectType + "." + c.ObjectName, map[string]interface{}{
				"object_type": c.ObjectType, "object_name": c.ObjectName, "text": c.Text,
			}
		})
	}

	jsonBytes, err := json.Marshal(normalized)
	if err != nil {
		return "", fmt.Errorf("failed to marshal normalized schema: %w", err)
	}
	return string(jsonBytes), nil
}

// normalizeNamed sorts items by a caller-derived key and renders each to a
// map, giving every entity kind the same "sort then marshal" treatment the
// original table/column/index/foreign-key normalizers used.
func normalizeNamed[T any](items []T, render func(T) (string, map[string]interface{})) []map[string]interface{} {
	type keyed struct {
		key string
		val map[string]interface{}
	}
	entries := make([]keyed, len(items))
	for i, item := range items {
		k, v := render(item)
		entries[i] = keyed{k, v}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })

	result := make([]map[string]interface{}, len(entries))
	for i, e := range entries {
		result[i] = e.val
	}
	return result
}

func normalizeTables(tables []database.Table) []map[string]interface{} {
	sorted := make([]database.Table, len(tables))
	copy(sorted, tables)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	result := make([]map[string]interface{}, 0, len(sorted))
	for _, table := range sorted {
		tableMap := map[string]interface{}{
			"name":    table.Name,
			"columns": normalizeColumns(table.Columns),
		}
		if len(table.Indexes) > 0 {
			tableMap["indexes"] = normalizeIndexes(table.Indexes)
		}
		if len(table.ForeignKeys) > 0 {
			tableMap["foreign_keys"] = normalizeForeignKeys(table.ForeignKeys)
		}
		if table.PrimaryKey != nil {
			cols := append([]string(nil), table.PrimaryKey.Columns...)
			sort.Strings(cols)
			tableMap["primary_key"] = cols
		}
		if len(table.CheckConstraints) > 0 {
			tableMap["check_constraints"] = normalizeChecks(table.CheckConstraints)
		}
		if len(table.UniqueConstraints) > 0 {
			tableMap["unique_constraints"] = normalizeUniques(table.UniqueConstraints)
		}
		result = append(result, tableMap)
	}
	return result
}

func normalizeColumns(columns []database.Column) []map[string]interface{} {
	sorted := make([]database.Column, len(columns))
	copy(sorted, columns)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	result := make([]map[string]interface{}, len(sorted))
	for i, col := range sorted {
		colMap := map[string]interface{}{
			"name":           col.Name,
			"type":           strings.ToLower(col.LogicalType()),
			"nullable":       col.Nullable,
			"is_primary_key": col.IsPrimaryKey,
		}
		if col.Default != nil {
			colMap["default"] = *col.Default
		}
		if col.Generated != nil {
			colMap["generated"] = map[string]interface{}{
				"expression": col.Generated.Expression,
				"stored":     col.Generated.Stored,
			}
		}
		result[i] = colMap
	}
	return result
}

func normalizeIndexes(indexes []database.Index) []map[string]interface{} {
	sorted := make([]database.Index, len(indexes))
	copy(sorted, indexes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	result := make([]map[string]interface{}, len(sorted))
	for i, idx := range sorted {
		result[i] = map[string]interface{}{
			"name":    idx.Name,
			"columns": idx.Columns,
			"unique":  idx.Unique,
			"method":  idx.Method,
		}
	}
	return result
}

func normalizeForeignKeys(fks []database.ForeignKey) []map[string]interface{} {
	sorted := make([]database.ForeignKey, len(fks))
	copy(sorted, fks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	result := make([]map[string]interface{}, len(sorted))
	for i, fk := range sorted {
		fkMap := map[string]interface{}{
			"name":               fk.Name,
			"columns":            fk.Columns,
			"referenced_table":   fk.ReferencedTable,
			"referenced_columns": fk.ReferencedColumns,
		}
		if fk.OnDelete != nil {
			fkMap["on_delete"] = *fk.OnDelete
		}
		if fk.OnUpdate != nil {
			fkMap["on_update"] = *fk.OnUpdate
		}
		result[i] = fkMap
	}
	return result
}

func normalizeChecks(checks []database.CheckConstraint) []map[string]interface{} {
	sorted := make([]database.CheckConstraint, len(checks))
	copy(sorted, checks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	result := make([]map[string]interface{}, len(sorted))
	for i, c := range sorted {
		result[i] = map[string]interface{}{"name": c.Name, "expression": normalizeWhitespace(c.Expression)}
	}
	return result
}

func normalizeUniques(uniques []database.UniqueConstraint) []map[string]interface{} {
	sorted := make([]database.UniqueConstraint, len(uniques))
	copy(sorted, uniques)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	result := make([]map[string]interface{}, len(sorted))
	for i, u := range sorted {
		cols := append([]string(nil), u.Columns...)
		sort.Strings(cols)
		result[i] = map[string]interface{}{"name": u.Name, "columns": cols}
	}
	return result
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
