package models

import "fmt"

// FixConfidence is the overall trust verdict of an intent repair. The order is
// meaningful: confidence only ever moves toward Unsafe as fixes are applied,
// never back.
type FixConfidence int

const (
	ConfidenceSafe      FixConfidence = iota // All fixes were structurally certain
	ConfidenceAmbiguous                      // At least one fix needs review
	ConfidenceUnsafe                         // A fix was blocked or unresolvable
)

// String returns the wire representation of the confidence level.
func (c FixConfidence) String() string {
	switch c {
	case ConfidenceSafe:
		return "SAFE"
	case ConfidenceAmbiguous:
		return "AMBIGUOUS"
	case ConfidenceUnsafe:
		return "UNSAFE"
	default:
		return fmt.Sprintf("FixConfidence(%d)", int(c))
	}
}

// MarshalJSON renders the confidence as its string form.
func (c FixConfidence) MarshalJSON() ([]byte, error) {
	return []byte(`"` + c.String() + `"`), nil
}

// Downgrade merges in a new confidence observation. The result is the worse of
// the two levels; a downgrade is never undone.
func (c FixConfidence) Downgrade(to FixConfidence) FixConfidence {
	if to > c {
		return to
	}
	return c
}

// Inference note kinds, used by the explain plan to tag notes distinctly.
const (
	NoteInferredJoin     = "inferred_join"     // A join was synthesized with full confidence
	NoteNeedsReview      = "needs_review"      // A join was synthesized from a PROBABLE extraction
	NoteDuplicateSkipped = "duplicate_skipped" // A candidate join duplicated an existing signature
	NoteAmbiguous        = "ambiguous"         // Multiple candidate paths resolved the same table
	NoteUnsafe           = "unsafe"            // A synthesis was blocked (many-to-many or UNKNOWN)
	NoteDroppedReference = "dropped_reference" // An unresolvable alias or reference was dropped
)

// InferenceNote records one decision made during fixing, for the explain plan.
type InferenceNote struct {
	Kind    string `json:"kind"`
	Table   string `json:"table,omitempty"`
	Message string `json:"message"`
}

// FixResult is the outcome of repairing an intent.
type FixResult struct {
	FixedIntent    *QueryIntent    `json:"fixed_intent"`
	Confidence     FixConfidence   `json:"confidence"`
	Reasons        []string        `json:"reasons,omitempty"`
	InferenceNotes []InferenceNote `json:"inference_notes,omitempty"`
}

// AddReason appends a human-readable reason to the result.
func (r *FixResult) AddReason(format string, args ...any) {
	r.Reasons = append(r.Reasons, fmt.Sprintf(format, args...))
}

// AddNote appends an inference note for the explain plan.
func (r *FixResult) AddNote(kind, table, format string, args ...any) {
	r.InferenceNotes = append(r.InferenceNotes, InferenceNote{
		Kind:    kind,
		Table:   table,
		Message: fmt.Sprintf(format, args...),
	})
}
