package planner

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadJSONPlan reads a MigrationPlan previously saved with SaveJSONPlan,
// the same JSON that `schemasync plan` prints to stdout (for example
// redirected to plan.json) and `schemasync apply plan.json` later consumes.
func LoadJSONPlan(path string) (*MigrationPlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file %s: %w", path, err)
	}

	var plan MigrationPlan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("failed to parse plan file %s: %w", path, err)
	}

	return &plan, nil
}

// SaveJSONPlan writes a MigrationPlan to path as indented JSON.
func SaveJSONPlan(plan *MigrationPlan, path string) error {
	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write plan file %s: %w", path, err)
	}
	return nil
}
