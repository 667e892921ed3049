package diff

import "strings"

// losslessWidening lists, for a handful of canonical column types, the
// other canonical types a value of that type can always convert into
// without truncation or rejection (e.g. a smallint always fits in an
// integer). It mirrors internal/validation's isTypeConversionSafe table,
// but only the forward direction matters here: diffColumn uses it to
// decide between an in-place AlterColumnType and a full table Recreate,
// while validation additionally classifies the rollback direction for
// its Safe/Lossy/Dangerous reporting.
// SERIAL/SMALLSERIAL/BIGSERIAL never appear here: they're expanded to
// their underlying integer type at parse/introspection time
// (internal/parser's expandSerialColumn, database/postgres's GetColumns),
// so LogicalType() never reports a serial pseudo-type for this table to
// classify.
var losslessWidening = map[string][]string{
	"smallint":         {"integer", "bigint", "numeric", "decimal"},
	"integer":          {"bigint", "numeric", "decimal"},
	"bigint":           {"numeric", "decimal"},
	"real":             {"double precision", "numeric", "decimal"},
	"double precision": {"numeric", "decimal"},
	"varchar":          {"text"},
	"char":             {"varchar", "text"},
	"date":             {"timestamp", "timestamp with time zone"},
	"timestamp":        {"timestamp with time zone"},
}

// isLosslessTypeChange reports whether converting a column from one
// canonical type to another can never lose data, per spec.md's diff
// engine rule: a lossless pair gets an in-place AlterColumnType, anything
// else (text -> integer, numeric -> integer, a narrowing varchar, ...)
// forces a Recreate so the conversion runs through a staged table rebuild
// instead of a plain ALTER COLUMN TYPE that could fail or truncate rows.
func isLosslessTypeChange(from, to string) bool {
	from, to = normalizeTypeName(from), normalizeTypeName(to)
	if from == to {
		return true
	}
	for _, candidate := range losslessWidening[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// normalizeTypeName lowercases a type name and drops any size/precision
// modifier (VARCHAR(255) -> varchar) so dialect-specific typmods don't
// defeat the lossless-conversion lookup.
func normalizeTypeName(t string) string {
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = t[:i]
	}
	return strings.ToLower(strings.TrimSpace(t))
}
