package models

// JoinStep is one join of the explain plan, in emission order.
type JoinStep struct {
	FromTable       string `json:"from_table"`
	ToTable         string `json:"to_table"`
	JoinType        string `json:"join_type"`
	On              string `json:"on"`
	Reason          string `json:"reason"`
	Confidence      string `json:"confidence"`
	InferenceReason string `json:"inference_reason,omitempty"`
}

// ExplainPlan is the trace of the decisions made while fixing and emitting a
// query: the anchor table, the ordered join steps, the inference notes, and a
// snapshot of the shape of the query. It is a pure rendering input; building
// it makes no new decisions.
type ExplainPlan struct {
	AnchorTable string          `json:"anchor_table"`
	Steps       []JoinStep      `json:"steps"`
	Notes       []InferenceNote `json:"notes,omitempty"`
	Columns     []string        `json:"columns,omitempty"`
	Filters     []string        `json:"filters,omitempty"`
	GroupBy     []string        `json:"group_by,omitempty"`
}
