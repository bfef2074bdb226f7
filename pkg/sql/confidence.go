package sql

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jinzhu/inflection"
)

// ConfidenceTier grades how safely a column could be extracted from a SQL
// expression fragment. The tier gates whether the fixer may synthesize a join
// from the extraction.
type ConfidenceTier int

const (
	TierSafe     ConfidenceTier = iota // Direct reference, optionally one allow-listed wrapper
	TierProbable                       // Reference inside arithmetic, CASE, or deep nesting
	TierUnknown                        // Subquery/window involvement, or nothing extractable
)

// String returns the wire representation of the tier.
func (t ConfidenceTier) String() string {
	switch t {
	case TierSafe:
		return "SAFE"
	case TierProbable:
		return "PROBABLE"
	default:
		return "UNKNOWN"
	}
}

// Patterns that force UNKNOWN. Checked before anything else so a subquery
// containing a plausible-looking reference never scores SAFE or PROBABLE.
var (
	subqueryPattern     = regexp.MustCompile(`(?is)\bSELECT\b.*\bFROM\b`)
	windowPattern       = regexp.MustCompile(`(?i)\bOVER\s*\(`)
	inSubqueryPattern   = regexp.MustCompile(`(?i)\bIN\s*\(\s*SELECT\b`)
	existsPattern       = regexp.MustCompile(`(?i)\bEXISTS\s*\(\s*SELECT\b`)
	arithmeticPattern   = regexp.MustCompile(`[+\-*/]`)
	caseKeywordPattern  = regexp.MustCompile(`(?i)\bCASE\b`)
	columnRefSubPattern = `\.\s*([A-Za-z_][A-Za-z0-9_]*)`
)

// ColumnRef is a table-qualified column reference found in an expression.
type ColumnRef struct {
	Table  string
	Column string
}

var anyColumnRefPattern = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_]*)\s*\.\s*([A-Za-z_][A-Za-z0-9_]*)`)

// ReferencedColumns extracts every table-qualified column reference from an
// expression, in order of appearance.
func ReferencedColumns(expr string) []ColumnRef {
	matches := anyColumnRefPattern.FindAllStringSubmatch(expr, -1)
	refs := make([]ColumnRef, 0, len(matches))
	for _, m := range matches {
		refs = append(refs, ColumnRef{Table: m[1], Column: m[2]})
	}
	return refs
}

// ExtractColumn scores a free-text SQL expression for how safely a column of
// the given table can be inferred from it.
//
// Tiers, in evaluation order:
//   - UNKNOWN: the expression involves a subquery, window function, IN (SELECT
//     or EXISTS (SELECT. Checked first to avoid false positives.
//   - SAFE: a direct table.column reference, optionally wrapped in exactly one
//     of UPPER, LOWER, CAST…AS, COALESCE.
//   - PROBABLE: the table's column appears inside arithmetic, a CASE
//     statement, or more than two levels of parenthesis nesting.
//   - Fallback: a bare table.column match is returned as PROBABLE with reason
//     "fallback extraction"; otherwise nothing is extracted.
//
// The function is pure: it never consults external state.
func ExtractColumn(expression, table string) (string, ConfidenceTier, string) {
	expr := strings.TrimSpace(expression)
	if expr == "" {
		return "", TierUnknown, "empty expression"
	}

	// UNKNOWN tier first
	switch {
	case inSubqueryPattern.MatchString(expr):
		return "", TierUnknown, "expression contains IN (SELECT ...) subquery"
	case existsPattern.MatchString(expr):
		return "", TierUnknown, "expression contains EXISTS (SELECT ...) subquery"
	case windowPattern.MatchString(expr):
		return "", TierUnknown, "expression contains a window function"
	case subqueryPattern.MatchString(expr):
		return "", TierUnknown, "expression contains a subquery"
	}

	refPattern := tableRefPattern(table)

	// SAFE: direct reference
	if m := regexp.MustCompile(`^\s*` + refPattern + `\s*$`).FindStringSubmatch(expr); m != nil {
		return lastGroup(m), TierSafe, "direct column reference"
	}

	// SAFE: exactly one allow-listed wrapper
	wrapped := []*regexp.Regexp{
		regexp.MustCompile(`(?i)^\s*(?:UPPER|LOWER)\(\s*` + refPattern + `\s*\)\s*$`),
		regexp.MustCompile(`(?i)^\s*CAST\(\s*` + refPattern + `\s+AS\s+[A-Za-z]+(?:\(\d+(?:,\s*\d+)?\))?\s*\)\s*$`),
		regexp.MustCompile(`(?i)^\s*COALESCE\(\s*` + refPattern + `\s*,[^()]*\)\s*$`),
	}
	for _, p := range wrapped {
		if m := p.FindStringSubmatch(expr); m != nil {
			return lastGroup(m), TierSafe, "allow-listed function wrapper"
		}
	}

	// PROBABLE: reference present inside arithmetic, CASE, or deep nesting
	if m := regexp.MustCompile(refPattern).FindStringSubmatch(expr); m != nil {
		col := lastGroup(m)
		switch {
		case arithmeticPattern.MatchString(expr):
			return col, TierProbable, "column used inside arithmetic"
		case caseKeywordPattern.MatchString(expr):
			return col, TierProbable, "column used inside CASE expression"
		case maxParenDepth(expr) > 2:
			return col, TierProbable, fmt.Sprintf("column nested %d parenthesis levels deep", maxParenDepth(expr))
		}
		// Reference exists but no structural signal matched
		return col, TierProbable, "fallback extraction"
	}

	return "", TierUnknown, fmt.Sprintf("no column of %q referenced", table)
}

// tableRefPattern builds a pattern matching a qualified reference to the
// table, accepting the literal name and its normalized/singular variants.
func tableRefPattern(table string) string {
	variants := map[string]bool{}
	for _, v := range []string{
		table,
		strings.ToLower(strings.TrimSpace(table)),
		inflection.Singular(strings.ToLower(strings.TrimSpace(table))),
	} {
		if v != "" {
			variants[regexp.QuoteMeta(v)] = true
		}
	}
	alternatives := make([]string, 0, len(variants))
	for v := range variants {
		alternatives = append(alternatives, v)
	}
	// Sort for deterministic pattern text
	for i := 0; i < len(alternatives); i++ {
		for j := i + 1; j < len(alternatives); j++ {
			if alternatives[j] < alternatives[i] {
				alternatives[i], alternatives[j] = alternatives[j], alternatives[i]
			}
		}
	}
	return `(?i:` + strings.Join(alternatives, "|") + `)` + columnRefSubPattern
}

// lastGroup returns the last capture group of a regex match, which for all
// patterns above is the column name.
func lastGroup(m []string) string {
	return m[len(m)-1]
}

// maxParenDepth returns the deepest parenthesis nesting in the expression.
func maxParenDepth(expr string) int {
	depth, max := 0, 0
	for _, ch := range expr {
		switch ch {
		case '(':
			depth++
			if depth > max {
				max = depth
			}
		case ')':
			depth--
		}
	}
	return max
}
