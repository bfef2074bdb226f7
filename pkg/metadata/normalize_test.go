package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases", "Orders", "orders"},
		{"trims whitespace", "  orders  ", "orders"},
		{"strips quotes", `"orders"`, "orders"},
		{"strips backticks", "`orders`", "orders"},
		{"strips schema qualifier", "public.orders", "orders"},
		{"quoted qualified", `"public"."Orders"`, "orders"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeName(tt.in))
		})
	}
}

func TestNamesMatch(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{"exact", "orders", "orders", true},
		{"case insensitive", "Orders", "orders", true},
		{"singular vs plural", "order", "orders", true},
		{"plural vs singular", "customers", "customer", true},
		{"schema qualified", "public.orders", "orders", true},
		{"different tables", "orders", "customers", false},
		{"prefix is not a match", "order", "order_items", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NamesMatch(tt.a, tt.b))
		})
	}
}
