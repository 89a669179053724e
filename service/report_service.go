package service

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tieubaoca/memory-be/types"
)

const reportSystemPrompt = `You are a research assistant writing a report from a user's own documents, browsing history, and chat archives.
Write a well-structured Markdown report that answers the question using ONLY the numbered evidence provided.
Cite evidence inline with bracketed numbers like [1] or [2][3]. Never cite a number that is not in the evidence list.
If the evidence only partially answers the question, say what is missing. Do not invent facts.`

// ReportService synthesizes the final cited Markdown report. Unlike keyword
// generation, there is no useful degraded output here: a failed completion
// fails the run.
type ReportService struct {
	ai AIService
}

func NewReportService(ai AIService) *ReportService {
	return &ReportService{ai: ai}
}

// Synthesize builds the report from the retrieved evidence. Citation indices
// are dense and 1-based in order of first appearance; references the model
// makes to numbers outside that range are stripped from the body.
func (s *ReportService) Synthesize(ctx context.Context, query string, results []types.RetrievalResult, maxSources int) (types.Report, error) {
	if len(results) == 0 {
		return emptyReport(query), nil
	}
	if maxSources <= 0 {
		maxSources = 10
	}
	if len(results) > maxSources {
		results = results[:maxSources]
	}

	citations := buildCitations(results)
	prompt := buildReportPrompt(query, results)

	body, err := s.ai.Complete(ctx, reportSystemPrompt, prompt)
	if err != nil {
		return types.Report{}, &types.FatalPipelineError{Stage: types.StageReportGeneration, Err: err}
	}
	if strings.TrimSpace(body) == "" {
		return types.Report{}, &types.FatalPipelineError{Stage: types.StageReportGeneration, Err: fmt.Errorf("empty report body")}
	}

	return types.Report{
		Body:      stripInvalidCitations(body, len(citations)),
		Citations: citations,
	}, nil
}

// buildCitations assigns dense 1-based indices to parent sources in order of
// first appearance in the evidence.
func buildCitations(results []types.RetrievalResult) []types.ReportCitation {
	seen := make(map[string]bool)
	var citations []types.ReportCitation
	for _, res := range results {
		if seen[res.Chunk.ParentSourceID] {
			continue
		}
		seen[res.Chunk.ParentSourceID] = true
		citations = append(citations, types.ReportCitation{
			Index:       len(citations) + 1,
			SourceURL:   res.Chunk.ParentURL,
			SourceTitle: res.Chunk.ParentTitle,
			SourceType:  res.Chunk.ParentSourceType,
		})
	}
	return citations
}

func buildReportPrompt(query string, results []types.RetrievalResult) string {
	indexBySource := make(map[string]int)
	for _, res := range results {
		if _, ok := indexBySource[res.Chunk.ParentSourceID]; !ok {
			indexBySource[res.Chunk.ParentSourceID] = len(indexBySource) + 1
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\nEvidence:\n", query)
	for _, res := range results {
		idx := indexBySource[res.Chunk.ParentSourceID]
		title := res.Chunk.ParentTitle
		if title == "" {
			title = res.Chunk.ParentURL
		}
		fmt.Fprintf(&b, "\n[%d] %s (%s)\n", idx, title, res.Chunk.ParentSourceType)
		if len(res.Chunk.HeaderPath) > 0 {
			fmt.Fprintf(&b, "Section: %s\n", strings.Join(res.Chunk.HeaderPath, " > "))
		}
		b.WriteString(res.Chunk.Text)
		b.WriteString("\n")
	}
	b.WriteString("\nWrite the report now.")
	return b.String()
}

var citationRefPattern = regexp.MustCompile(`\[(\d+)\]`)

// stripInvalidCitations removes bracketed references outside [1, max]. The
// model occasionally hallucinates citation numbers past the evidence list.
func stripInvalidCitations(body string, max int) string {
	return citationRefPattern.ReplaceAllStringFunc(body, func(ref string) string {
		n, err := strconv.Atoi(ref[1 : len(ref)-1])
		if err != nil || n < 1 || n > max {
			return ""
		}
		return ref
	})
}

func emptyReport(query string) types.Report {
	var b strings.Builder
	b.WriteString("# No Sources Found\n\n")
	fmt.Fprintf(&b, "No relevant documents were found for: **%s**\n\n", query)
	b.WriteString("Try rephrasing the question, enabling more sources, or widening the history window.\n")
	return types.Report{Body: b.String()}
}
