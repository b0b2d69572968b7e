package core

// Stage names one step of a streaming tool's progress sequence. A successful
// run ends with StageComplete carrying the full result; a failed run ends
// with StageError. Consumers that only need the end state may drain the
// stream and keep the last value.
type Stage string

// The fixed progress vocabulary for long-running tools.
const (
	StageLoading      Stage = "loading"
	StageFetchingData Stage = "fetching_data"
	StageProcessing   Stage = "processing"
	StageAnalyzing    Stage = "analyzing"
	StageComplete     Stage = "complete"
	StageError        Stage = "error"
)

// Progress is one emission from a streaming tool. On StageComplete, Result
// holds the full outcome; on StageError, Err describes the failure. All other
// stages may carry an optional partial payload.
type Progress struct {
	Stage   Stage  `json:"stage"`
	Message string `json:"message,omitempty"`
	Payload any    `json:"payload,omitempty"`
	Result  ToolOutcome
	Err     *Error
}

// Final reports whether this emission terminates the sequence.
func (p Progress) Final() bool {
	return p.Stage == StageComplete || p.Stage == StageError
}
