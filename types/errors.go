package types

import (
	"errors"
	"fmt"
)

// ErrLLMFormat marks an LLM response that failed the expected structured
// output contract. Callers recover with a deterministic fallback.
var ErrLLMFormat = errors.New("llm response not parseable as expected structure")

// ErrEmbedding marks a failed embedding call for one chunk. The chunk is
// dropped, the batch continues.
var ErrEmbedding = errors.New("embedding failed")

// SourceError wraps one adapter's failure. It is recorded in per-source stats
// and never escalates to a pipeline failure.
type SourceError struct {
	Source SourceType
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// FatalPipelineError is the only error class that surfaces to the caller as a
// terminal error event: a failure that prevents producing any output at all.
type FatalPipelineError struct {
	Stage Stage
	Err   error
}

func (e *FatalPipelineError) Error() string {
	return fmt.Sprintf("pipeline failed at %s: %v", e.Stage, e.Err)
}

func (e *FatalPipelineError) Unwrap() error { return e.Err }
