package compare

import (
	"iam-platform/internal/models"
)

// RenameColumn returns a copy of observations with the scenario, model or
// variable column renamed through mapping. Unmapped names pass through, so
// applying a mapping whose targets are not themselves keys is idempotent.
func RenameColumn(observations []models.Observation, column string, mapping map[string]string) ([]models.Observation, error) {
	var field func(*models.Observation) *string
	switch column {
	case models.ColumnScenario:
		field = func(o *models.Observation) *string { return &o.Scenario }
	case models.ColumnModel:
		field = func(o *models.Observation) *string { return &o.Model }
	case models.ColumnVariable:
		field = func(o *models.Observation) *string { return &o.Variable }
	default:
		return nil, &models.SchemaError{Table: "observations", Column: column, Message: "column cannot be renamed"}
	}

	out := make([]models.Observation, len(observations))
	for i, o := range observations {
		o.Value = copyFloat(o.Value)
		if renamed, ok := mapping[*field(&o)]; ok {
			*field(&o) = renamed
		}
		out[i] = o
	}
	return out, nil
}
