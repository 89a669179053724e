package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateKeywordsParsesJSON(t *testing.T) {
	ai := &stubAI{responses: []string{`{
		"primary_keywords": ["kubernetes", "ingress"],
		"secondary_keywords": ["load balancer"],
		"context_keywords": ["networking"],
		"negative_keywords": ["aws"]
	}`}}
	svc := NewKeywordService(ai)

	set := svc.GenerateKeywords(context.Background(), "how does kubernetes ingress work", 10)

	assert.Equal(t, []string{"kubernetes", "ingress"}, set.Primary)
	assert.Equal(t, []string{"load balancer"}, set.Secondary)
	assert.Equal(t, []string{"aws"}, set.Negative)
}

func TestGenerateKeywordsStripsCodeFence(t *testing.T) {
	ai := &stubAI{responses: []string{"```json\n{\"primary_keywords\": [\"grpc\"]}\n```"}}
	svc := NewKeywordService(ai)

	set := svc.GenerateKeywords(context.Background(), "grpc streaming", 10)

	assert.Equal(t, []string{"grpc"}, set.Primary)
}

func TestGenerateKeywordsFallsBackOnError(t *testing.T) {
	ai := &stubAI{err: errors.New("model unavailable")}
	svc := NewKeywordService(ai)

	set := svc.GenerateKeywords(context.Background(), "how does raft handle leader election?", 10)

	require.NotEmpty(t, set.Primary)
	assert.Contains(t, set.Primary, "raft")
	assert.Contains(t, set.Primary, "leader")
	// single-character tokens are dropped
	assert.NotContains(t, set.Primary, "a")
}

func TestGenerateKeywordsFallsBackOnMalformedJSON(t *testing.T) {
	ai := &stubAI{responses: []string{"here are some keywords: raft, consensus"}}
	svc := NewKeywordService(ai)

	set := svc.GenerateKeywords(context.Background(), "raft consensus", 10)

	require.NotEmpty(t, set.Primary)
	assert.Contains(t, set.Primary, "raft")
}

func TestGenerateKeywordsEmptyPrimaryGetsFallback(t *testing.T) {
	ai := &stubAI{responses: []string{`{"secondary_keywords": ["alt"]}`}}
	svc := NewKeywordService(ai)

	set := svc.GenerateKeywords(context.Background(), "vector databases", 10)

	require.NotEmpty(t, set.Primary)
	assert.Equal(t, []string{"alt"}, set.Secondary)
}

func TestGenerateKeywordsRespectsMax(t *testing.T) {
	ai := &stubAI{err: errors.New("down")}
	svc := NewKeywordService(ai)

	set := svc.GenerateKeywords(context.Background(), "one two three four five six", 3)

	assert.Len(t, set.Primary, 3)
}

func TestGenerateFollowupQueriesParsesArray(t *testing.T) {
	ai := &stubAI{responses: []string{`["raft log replication", "raft term numbers"]`}}
	svc := NewKeywordService(ai)

	queries := svc.GenerateFollowupQueries(context.Background(), "raft", kwSet("raft"), 5)

	assert.Equal(t, []string{"raft log replication", "raft term numbers"}, queries)
}

func TestGenerateFollowupQueriesDropsOriginalAndDuplicates(t *testing.T) {
	ai := &stubAI{responses: []string{`["raft", "Raft Elections", "raft elections", ""]`}}
	svc := NewKeywordService(ai)

	queries := svc.GenerateFollowupQueries(context.Background(), "raft", kwSet("raft"), 5)

	assert.Equal(t, []string{"Raft Elections"}, queries)
}

func TestGenerateFollowupQueriesTemplatedFallback(t *testing.T) {
	ai := &stubAI{err: errors.New("down")}
	svc := NewKeywordService(ai)

	queries := svc.GenerateFollowupQueries(context.Background(), "how does raft work", kwSet("elections", "terms"), 2)

	assert.Equal(t, []string{"how does raft work elections", "how does raft work terms"}, queries)
}

func TestGenerateFollowupQueriesZeroMax(t *testing.T) {
	ai := &stubAI{}
	svc := NewKeywordService(ai)

	assert.Nil(t, svc.GenerateFollowupQueries(context.Background(), "q", kwSet("a"), 0))
	assert.Zero(t, ai.calls)
}

func TestStripCodeFence(t *testing.T) {
	cases := map[string]string{
		"plain":                        "plain",
		"```json\n{\"a\":1}\n```":      `{"a":1}`,
		"```\n[1,2]\n```":              "[1,2]",
		"  ```json\n{\"a\": 2}\n```  ": `{"a": 2}`,
	}
	for in, want := range cases {
		assert.Equal(t, want, stripCodeFence(in))
	}
}
