package sql

import (
	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult contains the result of an injection check on a filter
// value that is about to be inlined into emitted SQL.
type InjectionCheckResult struct {
	IsSQLi      bool   // True if SQL injection pattern detected
	Fingerprint string // libinjection fingerprint of the detected pattern
	Column      string // Column the filter targets
	Value       any    // The value that was checked
}

// CheckFilterValue uses libinjection to detect SQL injection patterns in a
// filter value. Only string values are checked; numbers and booleans cannot
// carry injection payloads and return nil.
//
// Returns nil if no injection is detected.
func CheckFilterValue(column string, value any) *InjectionCheckResult {
	strValue, ok := value.(string)
	if !ok {
		return nil
	}

	isSQLi, fingerprint := libinjection.IsSQLi(strValue)
	if isSQLi {
		return &InjectionCheckResult{
			IsSQLi:      true,
			Fingerprint: string(fingerprint),
			Column:      column,
			Value:       value,
		}
	}

	return nil
}

// CheckFilterValues screens a set of filter values. Returns one result per
// value that failed the check; empty when all values are clean.
func CheckFilterValues(column string, values []any) []*InjectionCheckResult {
	var results []*InjectionCheckResult
	for _, value := range values {
		if result := CheckFilterValue(column, value); result != nil {
			results = append(results, result)
		}
	}
	return results
}
