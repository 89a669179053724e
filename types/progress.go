package types

// Stage names the pipeline states in execution order. The terminal states are
// StageComplete and StageError; error is reachable from any state.
type Stage string

const (
	StageKeywordGeneration Stage = "keyword_generation"
	StageMCPSearch         Stage = "mcp_search"
	StageVectorization     Stage = "vectorization"
	StageRAGSearch         Stage = "rag_search"
	StageReportGeneration  Stage = "report_generation"
	StageComplete          Stage = "complete"
	StageError             Stage = "error"
)

// ProgressEvent describes one pipeline state transition. Step counts up from 1
// and is monotonic within a run.
type ProgressEvent struct {
	Step    int            `json:"step"`
	Stage   Stage          `json:"stage"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

const (
	EventSearchProgress = "search_progress"
	EventSearchComplete = "search_complete"
	EventError          = "error"
)

// WebSocketFrame is the envelope sent to /ws/search clients.
type WebSocketFrame struct {
	Event   string `json:"event"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}
