package services

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"matrix-sync/internal/models"
)

// IncomeOverrides holds historical income compensations keyed by user id.
// They are added on top of the live chain figures when a user is read.
type IncomeOverrides map[uint]models.IncomeSnapshot

// LoadIncomeOverrides reads overrides from a JSON object of the form
// {"22": {"total": "7450", "levelIncome": "1121.91", "directIncome": "3412"}}.
// An empty path yields no overrides.
func LoadIncomeOverrides(path string) (IncomeOverrides, error) {
	if path == "" {
		return IncomeOverrides{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read income overrides: %w", err)
	}
	return ParseIncomeOverrides(data)
}

// ParseIncomeOverrides decodes the overrides file format
func ParseIncomeOverrides(data []byte) (IncomeOverrides, error) {
	var raw map[string]models.IncomeSnapshot
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse income overrides: %w", err)
	}

	overrides := make(IncomeOverrides, len(raw))
	for key, snapshot := range raw {
		id, err := strconv.ParseUint(key, 10, 64)
		if err != nil || id == 0 {
			return nil, fmt.Errorf("invalid user id %q in income overrides", key)
		}
		overrides[uint(id)] = snapshot
	}
	return overrides, nil
}

// Apply returns income with the override for userID added, and whether one existed
func (o IncomeOverrides) Apply(userID uint, income models.IncomeSnapshot) (models.IncomeSnapshot, bool) {
	extra, ok := o[userID]
	if !ok {
		return income, false
	}
	return income.Add(extra), true
}
