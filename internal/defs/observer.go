package defs

// DetectionEntry pairs a session with its latest detection summary.
type DetectionEntry struct {
	ClientID string
	Summary  *DetectionSummary
}
