package types

import "time"

// PipelineConfig carries the per-run knobs of the RAG pipeline. A zero value
// is filled in with defaults by the pipeline service.
type PipelineConfig struct {
	EnabledSources      []SourceType  `json:"enabled_sources" mapstructure:"enabled_sources"`
	ExcludedSourceIDs   []string      `json:"excluded_source_ids" mapstructure:"excluded_source_ids"`
	SimilarityThreshold float32       `json:"similarity_threshold" mapstructure:"similarity_threshold"`
	MaxKeywords         int           `json:"max_keywords" mapstructure:"max_keywords"`
	MaxResultsPerSource int           `json:"max_results_per_source" mapstructure:"max_results_per_source"`
	MaxSourcesInReport  int           `json:"max_sources_in_report" mapstructure:"max_sources_in_report"`
	MaxFollowupQueries  int           `json:"max_followup_queries" mapstructure:"max_followup_queries"`
	HistoryDays         int           `json:"history_days" mapstructure:"history_days"`
	KPerQuery           int           `json:"k_per_query" mapstructure:"k_per_query"`
	FetchK              int           `json:"fetch_k" mapstructure:"fetch_k"`
	LambdaMult          float32       `json:"lambda_mult" mapstructure:"lambda_mult"`
	AdapterTimeout      time.Duration `json:"-" mapstructure:"-"`
}

// SourceStats records the outcome of one adapter during fan-out.
type SourceStats struct {
	Count int    `json:"count"`
	Error string `json:"error,omitempty"`
}

// SearchRecord is a finished pipeline run persisted for later inspection of
// which keyword strategies worked.
type SearchRecord struct {
	ID                string   `json:"id" bson:"_id,omitempty"`
	Query             string   `json:"query" bson:"query"`
	Keywords          []string `json:"keywords" bson:"keywords"`
	RAGQueries        []string `json:"rag_queries" bson:"rag_queries"`
	TotalDocuments    int      `json:"total_documents" bson:"total_documents"`
	RelevantDocuments int      `json:"relevant_documents" bson:"relevant_documents"`
	DurationMillis    int64    `json:"duration_millis" bson:"duration_millis"`
	CreatedAt         int64    `json:"created_at" bson:"created_at"`
}

// ExcludedFolder is a Drive folder excluded from search.
type ExcludedFolder struct {
	FolderID    string `json:"folder_id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Enabled     bool   `json:"enabled"`
	AddedAt     int64  `json:"added_at,omitempty"`
}
