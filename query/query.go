// Package query parses flat HTTP request parameters into a planned query the
// content storage service can execute. The planner does no type coercion:
// filter values stay strings and the storage tier relies on the database's
// implicit conversion for numeric columns.
package query

import (
	"sort"
	"strconv"
	"strings"
)

// Filter operators.
const (
	OpEq         = "eq"
	OpNe         = "ne"
	OpIn         = "in"
	OpNin        = "nin"
	OpGt         = "gt"
	OpGte        = "gte"
	OpLt         = "lt"
	OpLte        = "lte"
	OpContains   = "contains"
	OpStartsWith = "startsWith"
	OpEndsWith   = "endsWith"
)

// Sort directions.
const (
	DirAsc  = "asc"
	DirDesc = "desc"
)

// Pagination bounds.
const (
	DefaultPage  = 1
	DefaultLimit = 25
	MaxLimit     = 100
)

var knownOps = map[string]bool{
	OpEq: true, OpNe: true, OpIn: true, OpNin: true,
	OpGt: true, OpGte: true, OpLt: true, OpLte: true,
	OpContains: true, OpStartsWith: true, OpEndsWith: true,
}

// Filter is one parsed filter condition. Values holds the comma-split list
// for in/nin; Value holds the raw string for every other operator.
type Filter struct {
	Field  string
	Op     string
	Value  string
	Values []string
}

// Sort is one parsed sort directive.
type Sort struct {
	Field     string
	Direction string
}

// Planned is the query shape handed to the content storage service.
type Planned struct {
	Filters  []Filter
	Sort     []Sort
	Page     int
	Limit    int
	Populate []string
	Fields   []string
}

// Parse turns raw request parameters into a planned query.
//
// Grammar:
//
//	filters[<field>] = <op>:<value>   (missing op prefix means eq)
//	sort             = field:asc,field2:desc
//	page             = positive integer, clamped to >= 1
//	limit            = positive integer, clamped to [1, 100]
//	populate         = comma-separated relation field keys
//	fields           = comma-separated output field keys
//
// Go maps carry no declaration order, so filters are applied in sorted key
// order to keep planning deterministic.
func Parse(params map[string]string) Planned {
	p := Planned{
		Page:  DefaultPage,
		Limit: DefaultLimit,
	}

	// filters keep a deterministic order: collect keys first
	var filterKeys []string
	for key := range params {
		if strings.HasPrefix(key, "filters[") && strings.HasSuffix(key, "]") {
			filterKeys = append(filterKeys, key)
		}
	}
	sort.Strings(filterKeys)
	for _, key := range filterKeys {
		field := key[len("filters[") : len(key)-1]
		if field == "" {
			continue
		}
		p.Filters = append(p.Filters, parseFilter(field, params[key]))
	}

	if raw, ok := params["sort"]; ok && raw != "" {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			p.Sort = append(p.Sort, parseSort(part))
		}
	}

	if raw, ok := params["page"]; ok {
		if n, err := strconv.Atoi(raw); err == nil {
			p.Page = n
		}
	}
	if p.Page < 1 {
		p.Page = 1
	}

	if raw, ok := params["limit"]; ok {
		if n, err := strconv.Atoi(raw); err == nil {
			p.Limit = n
		}
	}
	if p.Limit < 1 {
		p.Limit = 1
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}

	p.Populate = splitList(params["populate"])
	p.Fields = splitList(params["fields"])

	return p
}

// parseFilter splits the operator prefix before the first colon. An unknown
// prefix is not an operator: the whole value is an eq match.
func parseFilter(field, raw string) Filter {
	op := OpEq
	value := raw
	if idx := strings.Index(raw, ":"); idx >= 0 {
		if candidate := raw[:idx]; knownOps[candidate] {
			op = candidate
			value = raw[idx+1:]
		}
	}

	f := Filter{Field: field, Op: op, Value: value}
	if op == OpIn || op == OpNin {
		f.Values = splitList(value)
	}
	return f
}

func parseSort(part string) Sort {
	field := part
	dir := DirAsc
	if idx := strings.Index(part, ":"); idx >= 0 {
		field = part[:idx]
		if part[idx+1:] == DirDesc {
			dir = DirDesc
		}
	}
	return Sort{Field: field, Direction: dir}
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
