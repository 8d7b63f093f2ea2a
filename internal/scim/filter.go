package scim

import (
	"regexp"
	"strconv"
	"strings"
)

// DefaultPageSize is the count applied when the request omits it.
const DefaultPageSize = 100

// Filter is a parsed single-clause equality filter.
type Filter struct {
	Attribute string
	Value     string
}

// filterPattern matches the supported grammar: attr eq "value".
// Attribute and operator are matched case-insensitively.
var filterPattern = regexp.MustCompile(`^\s*([A-Za-z][A-Za-z0-9]*)\s+([A-Za-z]{2})\s+"((?:[^"\\]|\\.)*)"\s*$`)

// ParseFilter parses a filter query parameter. The empty string yields a
// nil filter. allowedAttr is the single attribute the resource supports;
// a well-formed clause naming anything else, or any operator other than
// eq, is rejected as unsupported rather than malformed.
func ParseFilter(raw, allowedAttr string) (*Filter, error) {
	if raw == "" {
		return nil, nil
	}

	m := filterPattern.FindStringSubmatch(raw)
	if m == nil {
		lowered := strings.ToLower(raw)
		if strings.Contains(lowered, " and ") || strings.Contains(lowered, " or ") || strings.ContainsAny(raw, "()") {
			return nil, ErrNotImplemented("compound filter expressions are not supported")
		}
		return nil, ErrInvalidValue("unsupported or malformed filter expression")
	}

	attr := m[1]
	op := strings.ToLower(m[2])
	value := unescapeFilterValue(m[3])

	if op != "eq" {
		return nil, ErrNotImplemented("only the eq filter operator is supported")
	}
	if !strings.EqualFold(attr, allowedAttr) {
		return nil, ErrNotImplemented("filtering on attribute " + attr + " is not supported")
	}

	return &Filter{Attribute: allowedAttr, Value: value}, nil
}

func unescapeFilterValue(v string) string {
	v = strings.ReplaceAll(v, `\"`, `"`)
	v = strings.ReplaceAll(v, `\\`, `\`)
	return v
}

// Page holds normalized pagination parameters. StartIndex is 1-based.
type Page struct {
	StartIndex int
	Count      int
}

// ParsePage normalizes startIndex and count query parameters. Non-numeric
// values are rejected; startIndex below 1 clamps to 1 and a negative count
// clamps to 0.
func ParsePage(startIndexRaw, countRaw string) (Page, error) {
	page := Page{StartIndex: 1, Count: DefaultPageSize}

	if startIndexRaw != "" {
		n, err := strconv.Atoi(startIndexRaw)
		if err != nil {
			return page, ErrInvalidValue("startIndex must be an integer")
		}
		if n < 1 {
			n = 1
		}
		page.StartIndex = n
	}

	if countRaw != "" {
		n, err := strconv.Atoi(countRaw)
		if err != nil {
			return page, ErrInvalidValue("count must be an integer")
		}
		if n < 0 {
			n = 0
		}
		page.Count = n
	}

	return page, nil
}

// RejectUnsupportedListParams returns a notImplemented error when the
// request asks for sorting or attribute projection.
func RejectUnsupportedListParams(sortBy, sortOrder, attributes, excludedAttributes string) error {
	if sortBy != "" || sortOrder != "" {
		return ErrNotImplemented("sorting is not supported")
	}
	if attributes != "" || excludedAttributes != "" {
		return ErrNotImplemented("attribute projection is not supported")
	}
	return nil
}

// paginate slices one page out of items. A page starting beyond the end
// yields an empty slice.
func paginate[T any](items []T, page Page) []T {
	start := page.StartIndex - 1
	if start >= len(items) {
		return nil
	}
	end := start + page.Count
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
