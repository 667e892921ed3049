// Package validation classifies the operations in a ChangeSet by safety:
// whether an operation is reversible, whether it can lose data, and what
// a user should do instead when it can't be made safe.
package validation

import (
	"fmt"

	"github.com/elitan/schemasync/database"
	"github.com/elitan/schemasync/internal/diff"
)

// SafetyLevel represents how safe a migration operation is.
type SafetyLevel int

const (
	SafetyLevelSafe       SafetyLevel = iota // fully reversible, no breaking change
	SafetyLevelReview                        // might be risky, needs a human look
	SafetyLevelLossy                         // forward-safe, but rollback loses data
	SafetyLevelDangerous                     // permanent data loss or likely failure
	SafetyLevelMultiPhase                    // should be split across deploys
)

func (s SafetyLevel) String() string {
	switch s {
	case SafetyLevelSafe:
		return "Safe"
	case SafetyLevelReview:
		return "Requires Review"
	case SafetyLevelLossy:
		return "Lossy"
	case SafetyLevelDangerous:
		return "Dangerous"
	case SafetyLevelMultiPhase:
		return "Multi-Phase Required"
	default:
		return "Unknown"
	}
}

// Icon returns the emoji badge shown next to the safety level in reports.
func (s SafetyLevel) Icon() string {
	switch s {
	case SafetyLevelSafe:
		return "✅"
	case SafetyLevelReview:
		return "⚠️"
	case SafetyLevelLossy:
		return "🔶"
	case SafetyLevelDangerous:
		return "❌"
	case SafetyLevelMultiPhase:
		return "🔄"
	default:
		return "❓"
	}
}

// SafetyClassification is the safety analysis attached to one operation.
type SafetyClassification struct {
	Level               SafetyLevel
	BreakingChange      bool
	DataLoss            bool
	RollbackDataLoss    bool
	RequiresMultiPhase  bool
	LockContention      bool
	RollbackDescription string
	SaferAlternatives   []string
}

// ValidationResult is the outcome of validating a single operation.
type ValidationResult struct {
	Valid      bool
	Reversible bool
	Errors     []string
	Warnings   []string
	Reasons    []string
	Safety     *SafetyClassification `json:"safety,omitempty"`
}

// OperationValidator validates whether one diff operation is safe.
type OperationValidator interface {
	Validate() ValidationResult
}

// AddColumnValidator validates adding a new column to an existing table.
type AddColumnValidator struct {
	TableName string
	Column    database.Column
}

func (v *AddColumnValidator) Validate() ValidationResult {
	result := ValidationResult{Valid: true, Reversible: true}

	switch {
	case !v.Column.Nullable && (v.Column.Default == nil || *v.Column.Default == ""):
		result.Valid = false
		result.Errors = append(result.Errors,
			fmt.Sprintf("Cannot add NOT NULL column '%s' without a DEFAULT value - existing rows would violate constraint", v.Column.Name))
		result.Reasons = append(result.Reasons,
			"NOT NULL columns require a DEFAULT value when added to tables with existing data")
		result.Safety = &SafetyClassification{
			Level:               SafetyLevelDangerous,
			BreakingChange:      true,
			RequiresMultiPhase:  true,
			RollbackDescription: "Rollback will drop column, losing any data written to it",
			SaferAlternatives: []string{
				"Add column as nullable first",
				"Add column with DEFAULT value",
				"Use multi-phase: add nullable, backfill, make NOT NULL",
			},
		}
	case v.Column.Nullable:
		result.Reasons = append(result.Reasons, fmt.Sprintf("Column '%s' is nullable - safe to add", v.Column.Name))
		result.Safety = &SafetyClassification{
			Level:               SafetyLevelSafe,
			RollbackDataLoss:    true,
			RollbackDescription: "Rollback will drop column. Data written to this column will be lost.",
		}
	default:
		result.Reasons = append(result.Reasons, fmt.Sprintf("Column '%s' has DEFAULT value - safe to add", v.Column.Name))
		result.Safety = &SafetyClassification{
			Level:               SafetyLevelSafe,
			RollbackDataLoss:    true,
			RollbackDescription: "Rollback will drop column. Data written to this column will be lost.",
		}
	}

	result.Reasons = append(result.Reasons, fmt.Sprintf("Reversible: DROP COLUMN %s.%s", v.TableName, v.Column.Name))
	return result
}

// AddForeignKeyValidator validates adding a new foreign key, checking the
// referenced table and columns exist in the target schema.
type AddForeignKeyValidator struct {
	TableName    string
	ForeignKey   database.ForeignKey
	TargetSchema *database.Schema
}

func (v *AddForeignKeyValidator) Validate() ValidationResult {
	result := ValidationResult{Valid: true, Reversible: true}

	var refTable *database.Table
	for i := range v.TargetSchema.Tables {
		if v.TargetSchema.Tables[i].Name == v.ForeignKey.ReferencedTable {
			refTable = &v.TargetSchema.Tables[i]
			break
		}
	}
	if refTable == nil {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("Referenced table '%s' does not exist", v.ForeignKey.ReferencedTable))
		return result
	}

	if len(v.ForeignKey.Columns) != len(v.ForeignKey.ReferencedColumns) {
		result.Valid = false
		result.Errors = append(result.Errors,
			fmt.Sprintf("Foreign key column count (%d) does not match referenced column count (%d)",
				len(v.ForeignKey.Columns), len(v.ForeignKey.ReferencedColumns)))
		return result
	}

	for i, refCol := range v.ForeignKey.ReferencedColumns {
		found := false
		for _, col := range refTable.Columns {
			if col.Name == refCol {
				found = true
				break
			}
		}
		if !found {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf("Referenced column '%s.%s' does not exist", v.ForeignKey.ReferencedTable, refCol))
		} else {
			result.Reasons = append(result.Reasons,
				fmt.Sprintf("FK column '%s' → '%s.%s' is valid", v.ForeignKey.Columns[i], v.ForeignKey.ReferencedTable, refCol))
		}
	}

	result.Reasons = append(result.Reasons, fmt.Sprintf("Reversible: DROP CONSTRAINT %s", v.ForeignKey.Name))
	return result
}

// DropColumnValidator validates dropping a column - always dangerous since
// the data cannot be recovered.
type DropColumnValidator struct {
	TableName string
	Column    database.Column
}

func (v *DropColumnValidator) Validate() ValidationResult {
	return ValidationResult{
		Valid:      true,
		Reversible: false,
		Warnings:   []string{fmt.Sprintf("Dropping column '%s.%s' will permanently lose data", v.TableName, v.Column.Name)},
		Reasons:    []string{"DROP COLUMN is irreversible - data cannot be recovered"},
		Safety: &SafetyClassification{
			Level:               SafetyLevelDangerous,
			BreakingChange:      true,
			DataLoss:            true,
			RequiresMultiPhase:  true,
			LockContention:      true,
			RollbackDescription: "Cannot rollback - column data is permanently lost",
			SaferAlternatives: []string{
				"Use deprecation period: stop writes → archive data → stop reads → drop column",
				"Use expand/contract if renaming: add new column → dual-write → migrate reads → drop old",
			},
		},
	}
}

// DropTableValidator validates dropping a table - always dangerous.
type DropTableValidator struct {
	Table database.Table
}

func (v *DropTableValidator) Validate() ValidationResult {
	return ValidationResult{
		Valid:      true,
		Reversible: false,
		Warnings:   []string{fmt.Sprintf("Dropping table '%s' will permanently lose all data", v.Table.Name)},
		Reasons:    []string{"DROP TABLE is irreversible - all table data cannot be recovered"},
		Safety: &SafetyClassification{
			Level:               SafetyLevelDangerous,
			BreakingChange:      true,
			DataLoss:            true,
			RequiresMultiPhase:  true,
			LockContention:      true,
			RollbackDescription: "Cannot rollback - all table data is permanently lost",
			SaferAlternatives: []string{
				"Use deprecation period: stop writes → archive data → stop reads → drop table",
				"Export table data to backup before dropping",
				"Rename table instead of drop, then drop later after verification",
			},
		},
	}
}

// AlterColumnTypeValidator validates a column type change, classifying it
// by whether the forward conversion and the implied rollback conversion
// are both widening (lossless).
type AlterColumnTypeValidator struct {
	TableName  string
	ColumnName string
	OldType    string
	NewType    string
}

func (v *AlterColumnTypeValidator) Validate() ValidationResult {
	conversionSafe := isTypeConversionSafe(v.OldType, v.NewType)
	rollbackSafe := isTypeConversionSafe(v.NewType, v.OldType)

	var level SafetyLevel
	var alternatives []string
	var valid bool
	var warnings []string

	switch {
	case !conversionSafe:
		level = SafetyLevelDangerous
		valid = false
		warnings = []string{fmt.Sprintf("Type conversion %s → %s might lose data or fail", v.OldType, v.NewType)}
		alternatives = []string{
			"Use multi-phase: add new column → backfill → dual-write → migrate reads → drop old",
			"Test conversion on shadow DB first to verify data compatibility",
			"Consider using a USING expression to handle conversion explicitly",
		}
	case !rollbackSafe:
		level = SafetyLevelLossy
		valid = true
		warnings = []string{fmt.Sprintf("Rollback will convert %s → %s, data might not fit", v.NewType, v.OldType)}
		alternatives = []string{
			"Test rollback on shadow DB to verify data fits old type",
			"Consider if this change is truly necessary",
		}
	default:
		level = SafetyLevelSafe
		valid = true
	}

	return ValidationResult{
		Valid:      valid,
		Reversible: rollbackSafe,
		Warnings:   warnings,
		Reasons:    []string{fmt.Sprintf("Changing column type: %s → %s", v.OldType, v.NewType)},
		Safety: &SafetyClassification{
			Level:               level,
			BreakingChange:      true,
			DataLoss:            !conversionSafe,
			RollbackDataLoss:    !rollbackSafe,
			RequiresMultiPhase:  !conversionSafe,
			LockContention:      true,
			RollbackDescription: fmt.Sprintf("Rollback will convert %s → %s. Data might not fit old type.", v.NewType, v.OldType),
			SaferAlternatives:   alternatives,
		},
	}
}

// AlterRLSValidator validates enabling or disabling row level security.
type AlterRLSValidator struct {
	TableName string
	Enable    bool
}

func (v *AlterRLSValidator) Validate() ValidationResult {
	action, rollbackAction := "Enable", "disable"
	var saferAlternatives []string
	if v.Enable {
		saferAlternatives = []string{
			"Define row level security policies before enabling RLS.",
			"Test policies against staging/shadow databases to avoid lockouts.",
		}
	} else {
		action, rollbackAction = "Disable", "enable"
	}

	return ValidationResult{
		Valid:      true,
		Reversible: true,
		Reasons:    []string{fmt.Sprintf("%s row level security on table %s", action, v.TableName)},
		Safety: &SafetyClassification{
			Level:               SafetyLevelSafe,
			RollbackDescription: fmt.Sprintf("Rollback will %s row level security on table %s.", rollbackAction, v.TableName),
			SaferAlternatives:   saferAlternatives,
		},
	}
}

// ValidateAddedColumns validates columns being added to a table.
func ValidateAddedColumns(tableName string, columns []database.Column) []ValidationResult {
	var results []ValidationResult
	for _, col := range columns {
		results = append(results, (&AddColumnValidator{TableName: tableName, Column: col}).Validate())
	}
	return results
}

// ValidateAddedForeignKeys validates foreign keys being added to a table.
func ValidateAddedForeignKeys(tableName string, foreignKeys []database.ForeignKey, targetSchema *database.Schema) []ValidationResult {
	var results []ValidationResult
	for _, fk := range foreignKeys {
		results = append(results, (&AddForeignKeyValidator{TableName: tableName, ForeignKey: fk, TargetSchema: targetSchema}).Validate())
	}
	return results
}

// ValidateSchemaDiffWithSchema validates every operation in a ChangeSet,
// given the target schema so foreign key references can be checked.
func ValidateSchemaDiffWithSchema(cs *diff.ChangeSet, targetSchema *database.Schema) []ValidationResult {
	var results []ValidationResult

	for _, tc := range cs.Tables {
		switch tc.Action {
		case diff.ActionDrop:
			results = append(results, (&DropTableValidator{Table: *tc.Current}).Validate())
		case diff.ActionCreate:
			if targetSchema != nil && tc.Desired != nil && len(tc.Desired.ForeignKeys) > 0 {
				results = append(results, ValidateAddedForeignKeys(tc.Desired.Name, tc.Desired.ForeignKeys, targetSchema)...)
			}
		case diff.ActionAlterInPlace, diff.ActionRecreate:
			var addedCols []database.Column
			for _, cc := range tc.ColumnChanges {
				if cc.Op == diff.ColumnOpAddColumn {
					addedCols = append(addedCols, cc.New)
				}
			}
			results = append(results, ValidateAddedColumns(tc.Name, addedCols)...)

			for _, cc := range tc.ColumnChanges {
				if cc.Op == diff.ColumnOpDropColumn {
					results = append(results, (&DropColumnValidator{TableName: tc.Name, Column: cc.Old}).Validate())
				}
				if cc.Op == diff.ColumnOpAlterType {
					results = append(results, (&AlterColumnTypeValidator{
						TableName:  tc.Name,
						ColumnName: cc.New.Name,
						OldType:    cc.Old.Type,
						NewType:    cc.New.Type,
					}).Validate())
				}
			}

			if tc.Current != nil && tc.Desired != nil && tc.Current.RLSEnabled != tc.Desired.RLSEnabled {
				results = append(results, (&AlterRLSValidator{TableName: tc.Name, Enable: tc.Desired.RLSEnabled}).Validate())
			}

			if targetSchema != nil && len(tc.AddedForeignKeys) > 0 {
				results = append(results, ValidateAddedForeignKeys(tc.Name, tc.AddedForeignKeys, targetSchema)...)
			}
		}
	}

	return results
}

// isTypeConversionSafe reports whether converting from one SQL type to
// another is a lossless widening conversion.
func isTypeConversionSafe(from, to string) bool {
	safeConversions := map[string][]string{
		"SMALLINT":         {"INTEGER", "BIGINT", "NUMERIC", "DECIMAL"},
		"INTEGER":          {"BIGINT", "NUMERIC", "DECIMAL"},
		"BIGINT":           {"NUMERIC", "DECIMAL"},
		"REAL":             {"DOUBLE PRECISION", "NUMERIC", "DECIMAL"},
		"DOUBLE PRECISION": {"NUMERIC", "DECIMAL"},
		"VARCHAR":          {"TEXT"},
		"CHAR":             {"VARCHAR", "TEXT"},
		"DATE":             {"TIMESTAMP", "TIMESTAMPTZ"},
		"TIMESTAMP":        {"TIMESTAMPTZ"},
	}

	from, to = normalizeType(from), normalizeType(to)
	if from == to {
		return true
	}
	for _, safeType := range safeConversions[from] {
		if safeType == to {
			return true
		}
	}
	return false
}

// normalizeType uppercases a SQL type and drops any size constraint, e.g.
// VARCHAR(255) → VARCHAR.
func normalizeType(typeName string) string {
	normalized := make([]byte, 0, len(typeName))
	for _, ch := range typeName {
		if ch == '(' {
			break
		}
		switch {
		case ch >= 'a' && ch <= 'z':
			normalized = append(normalized, byte(ch-32))
		case ch >= 'A' && ch <= 'Z', ch == ' ', ch == '_':
			normalized = append(normalized, byte(ch))
		}
	}
	return string(normalized)
}

// AllValid reports whether every validation result is valid.
func AllValid(results []ValidationResult) bool {
	for _, r := range results {
		if !r.Valid {
			return false
		}
	}
	return true
}

// AllReversible reports whether every operation is reversible.
func AllReversible(results []ValidationResult) bool {
	for _, r := range results {
		if !r.Reversible {
			return false
		}
	}
	return true
}

// HasDangerousOperations reports whether any operation is classified dangerous.
func HasDangerousOperations(results []ValidationResult) bool {
	for _, r := range results {
		if r.Safety != nil && r.Safety.Level == SafetyLevelDangerous {
			return true
		}
	}
	return false
}

// GetDangerousOperations returns every dangerous operation's result.
func GetDangerousOperations(results []ValidationResult) []ValidationResult {
	var dangerous []ValidationResult
	for _, r := range results {
		if r.Safety != nil && r.Safety.Level == SafetyLevelDangerous {
			dangerous = append(dangerous, r)
		}
	}
	return dangerous
}
