package condition

import (
	"testing"

	"github.com/Ktej255/leadflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cond    models.Condition
		wantErr bool
	}{
		{
			name: "equals",
			cond: models.Condition{Field: "stage", Operator: OperatorEquals, Value: "INTERESTED"},
		},
		{
			name: "in",
			cond: models.Condition{Field: "source", Operator: OperatorIn, Value: []any{"WEBSITE", "REFERRAL"}},
		},
		{
			name:    "operator outside the closed set",
			cond:    models.Condition{Field: "stage", Operator: "regex", Value: ".*"},
			wantErr: true,
		},
		{
			name:    "missing field",
			cond:    models.Condition{Operator: OperatorEquals, Value: "x"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.cond)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEvaluate(t *testing.T) {
	fields := map[string]any{
		"stage":  "INTERESTED",
		"score":  float64(42),
		"course": "UPSC Foundation",
	}

	tests := []struct {
		name string
		cond models.Condition
		want bool
	}{
		{"equals match", models.Condition{Field: "stage", Operator: OperatorEquals, Value: "INTERESTED"}, true},
		{"equals mismatch", models.Condition{Field: "stage", Operator: OperatorEquals, Value: "COLD"}, false},
		{"not equals", models.Condition{Field: "stage", Operator: OperatorNotEquals, Value: "COLD"}, true},
		{"in match", models.Condition{Field: "stage", Operator: OperatorIn, Value: []any{"NEW", "INTERESTED"}}, true},
		{"in mismatch", models.Condition{Field: "stage", Operator: OperatorIn, Value: []any{"NEW", "COLD"}}, false},
		{"gt", models.Condition{Field: "score", Operator: OperatorGt, Value: float64(40)}, true},
		{"lt", models.Condition{Field: "score", Operator: OperatorLt, Value: float64(40)}, false},
		{"contains", models.Condition{Field: "course", Operator: OperatorContains, Value: "UPSC"}, true},
		{"missing field equals nil", models.Condition{Field: "ghost", Operator: OperatorEquals, Value: nil}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(tt.cond, fields)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluate_NumericCoercion(t *testing.T) {
	// Snapshot values arrive as float64 after a JSON round trip even when
	// the CRM stores integers.
	got, err := Evaluate(models.Condition{Field: "score", Operator: OperatorEquals, Value: 42}, map[string]any{"score": float64(42)})
	require.NoError(t, err)
	assert.True(t, got)
}

func TestEvaluate_Errors(t *testing.T) {
	_, err := Evaluate(models.Condition{Field: "stage", Operator: "regex", Value: "x"}, nil)
	assert.Error(t, err)

	_, err = Evaluate(models.Condition{Field: "stage", Operator: OperatorIn, Value: "not-a-list"}, nil)
	assert.Error(t, err)

	_, err = Evaluate(models.Condition{Field: "stage", Operator: OperatorGt, Value: 10}, map[string]any{"stage": "NEW"})
	assert.Error(t, err)
}

func TestMatchFilters(t *testing.T) {
	fields := map[string]any{"stage": "NEW", "source": "WEBSITE"}

	matched, err := MatchFilters(map[string]any{"stage": "NEW"}, fields)
	require.NoError(t, err)
	assert.True(t, matched)

	matched, err = MatchFilters(map[string]any{"stage": "NEW", "source": "REFERRAL"}, fields)
	require.NoError(t, err)
	assert.False(t, matched)

	matched, err = MatchFilters(map[string]any{"source": []any{"WEBSITE", "WALK_IN"}}, fields)
	require.NoError(t, err)
	assert.True(t, matched)

	// Empty filters match every lead.
	matched, err = MatchFilters(nil, fields)
	require.NoError(t, err)
	assert.True(t, matched)

	_, err = MatchFilters(map[string]any{"stage": map[string]any{"op": "equals"}}, fields)
	assert.Error(t, err)
}
