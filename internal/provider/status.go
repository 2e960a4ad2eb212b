package provider

// State is the provider state folded onto the job lifecycle.
type State string

const (
	StateQueued     State = "queued"
	StateGenerating State = "generating"
	StateSuccess    State = "success"
	StateFail       State = "fail"
	StateUnknown    State = "unknown"
)

// TaskStatus is the normalised answer of a status endpoint.
type TaskStatus struct {
	// RawState is the state string exactly as the provider sent it.
	RawState string
	State    State

	// ResultPayload is the resultJson text (recordInfo) or the raw outputs (video).
	ResultPayload string
	URLs          []string
	Duration      float64

	FailMsg  string
	FailCode string

	// Recovered is set when the body did not decode and fields were scraped from the text.
	Recovered bool
	// ProviderHint is the video provider hint that produced this answer, "" for the default call.
	ProviderHint string
}

// Finished reports whether the provider reached a definitive state.
func (s *TaskStatus) Finished() bool {
	return s != nil && (s.State == StateSuccess || s.State == StateFail)
}

// MapState maps provider-specific status strings to State.
// recordInfo uses waiting|queuing|generating|success|fail, the video API uses
// queued|generating|completed|failed; a few aliases seen in the wild are accepted too.
func MapState(raw string) State {
	switch toLowerASCII(trimASCII(raw)) {
	case "waiting", "queuing", "queued", "pending", "in_queue":
		return StateQueued
	case "generating", "processing", "running", "in_progress":
		return StateGenerating
	case "success", "completed", "succeeded", "done":
		return StateSuccess
	case "fail", "failed", "failure", "error":
		return StateFail
	default:
		return StateUnknown
	}
}

func trimASCII(s string) string {
	start, end := 0, len(s)
	for start < end && (s[start] == ' ' || s[start] == '\t' || s[start] == '\n' || s[start] == '\r') {
		start++
	}
	for end > start && (s[end-1] == ' ' || s[end-1] == '\t' || s[end-1] == '\n' || s[end-1] == '\r') {
		end--
	}
	return s[start:end]
}

// toLowerASCII converts ASCII letters to lowercase without allocating.
func toLowerASCII(s string) string {
	hasUpper := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			hasUpper = true
			break
		}
	}
	if !hasUpper {
		return s
	}
	b := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		b[i] = c
	}
	return string(b)
}
