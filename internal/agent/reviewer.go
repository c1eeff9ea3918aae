package agent

// ReviewVerdict is the optional post-hoc audit of a finished answer.
// Observability only: it is attached to the answer, never gates delivery.
type ReviewVerdict struct {
	Pass    bool   `json:"pass"`
	Reason  string `json:"reason,omitempty"`
	Summary string `json:"summary,omitempty"`
}
