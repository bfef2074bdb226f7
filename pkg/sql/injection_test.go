package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckFilterValue(t *testing.T) {
	tests := []struct {
		name     string
		value    any
		wantSQLi bool
	}{
		{"plain string", "shipped", false},
		{"name with apostrophe only", "O'Brien", false},
		{"classic tautology", "' OR '1'='1", true},
		{"union select", "' UNION SELECT password FROM users--", true},
		{"stacked statement", "x'; DROP TABLE orders; --", true},
		{"number is never checked", 42, false},
		{"boolean is never checked", true, false},
		{"nil is never checked", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CheckFilterValue("status", tt.value)
			if tt.wantSQLi {
				require.NotNil(t, result)
				assert.True(t, result.IsSQLi)
				assert.NotEmpty(t, result.Fingerprint)
				assert.Equal(t, "status", result.Column)
			} else {
				assert.Nil(t, result)
			}
		})
	}
}

func TestCheckFilterValues(t *testing.T) {
	results := CheckFilterValues("status", []any{"shipped", "' OR '1'='1", 7})
	require.Len(t, results, 1)
	assert.Equal(t, "' OR '1'='1", results[0].Value)
}
