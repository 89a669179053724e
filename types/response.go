package types

type DataResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// SearchResult is the terminal payload of one pipeline run.
type SearchResult struct {
	Report            string                     `json:"report"`
	Citations         []ReportCitation           `json:"citations"`
	Sources           []Document                 `json:"sources"`
	KeywordsUsed      []string                   `json:"keywords_used"`
	RAGQueries        []string                   `json:"rag_queries"`
	TotalDocuments    int                        `json:"total_documents"`
	RelevantDocuments int                        `json:"relevant_documents"`
	SourceStats       map[SourceType]SourceStats `json:"source_stats"`
}
