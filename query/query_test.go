package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseFilters tests operator prefix parsing
func TestParseFilters(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected Filter
	}{
		{name: "ExplicitEq", raw: "eq:draft", expected: Filter{Field: "status", Op: OpEq, Value: "draft"}},
		{name: "NoColonDefaultsToEq", raw: "draft", expected: Filter{Field: "status", Op: OpEq, Value: "draft"}},
		{name: "UnknownPrefixIsValue", raw: "weird:value", expected: Filter{Field: "status", Op: OpEq, Value: "weird:value"}},
		{name: "Ne", raw: "ne:archived", expected: Filter{Field: "status", Op: OpNe, Value: "archived"}},
		{name: "Gt", raw: "gt:10", expected: Filter{Field: "status", Op: OpGt, Value: "10"}},
		{name: "Contains", raw: "contains:hello", expected: Filter{Field: "status", Op: OpContains, Value: "hello"}},
		{name: "In", raw: "in:draft,published", expected: Filter{Field: "status", Op: OpIn, Value: "draft,published", Values: []string{"draft", "published"}}},
		{name: "Nin", raw: "nin:archived", expected: Filter{Field: "status", Op: OpNin, Value: "archived", Values: []string{"archived"}}},
		{name: "ValueWithColon", raw: "eq:a:b", expected: Filter{Field: "status", Op: OpEq, Value: "a:b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Parse(map[string]string{"filters[status]": tt.raw})
			require.Len(t, p.Filters, 1)
			assert.Equal(t, tt.expected, p.Filters[0])
		})
	}
}

// TestParseSort tests sort list parsing and direction defaults
func TestParseSort(t *testing.T) {
	p := Parse(map[string]string{"sort": "title:asc,created_at:desc,updated_at"})
	require.Len(t, p.Sort, 3)
	assert.Equal(t, Sort{Field: "title", Direction: DirAsc}, p.Sort[0])
	assert.Equal(t, Sort{Field: "created_at", Direction: DirDesc}, p.Sort[1])
	assert.Equal(t, Sort{Field: "updated_at", Direction: DirAsc}, p.Sort[2])
}

// TestPaginationClamping tests page and limit defaults and bounds
func TestPaginationClamping(t *testing.T) {
	tests := []struct {
		name      string
		params    map[string]string
		wantPage  int
		wantLimit int
	}{
		{name: "Defaults", params: map[string]string{}, wantPage: 1, wantLimit: 25},
		{name: "Explicit", params: map[string]string{"page": "3", "limit": "50"}, wantPage: 3, wantLimit: 50},
		{name: "PageBelowOne", params: map[string]string{"page": "0"}, wantPage: 1, wantLimit: 25},
		{name: "NegativePage", params: map[string]string{"page": "-2"}, wantPage: 1, wantLimit: 25},
		{name: "LimitAboveMax", params: map[string]string{"limit": "500"}, wantPage: 1, wantLimit: 100},
		{name: "LimitBelowOne", params: map[string]string{"limit": "0"}, wantPage: 1, wantLimit: 1},
		{name: "Garbage", params: map[string]string{"page": "x", "limit": "y"}, wantPage: 1, wantLimit: 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Parse(tt.params)
			assert.Equal(t, tt.wantPage, p.Page)
			assert.Equal(t, tt.wantLimit, p.Limit)
		})
	}
}

// TestPopulateAndFields tests comma-separated list params
func TestPopulateAndFields(t *testing.T) {
	p := Parse(map[string]string{
		"populate": "author, related ,",
		"fields":   "title,body",
	})
	assert.Equal(t, []string{"author", "related"}, p.Populate)
	assert.Equal(t, []string{"title", "body"}, p.Fields)

	empty := Parse(map[string]string{})
	assert.Nil(t, empty.Populate)
	assert.Nil(t, empty.Fields)
}

// TestMultipleFiltersDeterministicOrder tests stable filter ordering
func TestMultipleFiltersDeterministicOrder(t *testing.T) {
	p := Parse(map[string]string{
		"filters[status]": "eq:draft",
		"filters[author]": "eq:u1",
	})
	require.Len(t, p.Filters, 2)
	assert.Equal(t, "author", p.Filters[0].Field)
	assert.Equal(t, "status", p.Filters[1].Field)
}
