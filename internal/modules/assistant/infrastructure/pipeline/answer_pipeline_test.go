package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"QueryLink/internal/modules/assistant/domain/query"
	"QueryLink/internal/modules/assistant/domain/repository"
	mockEmbedding "QueryLink/internal/modules/assistant/infrastructure/embedding"
	"QueryLink/pkg/xerr"

	"github.com/cloudwego/eino/components/embedding"
)

type fakeAgent struct {
	res     *repository.AgentRunResult
	err     error
	prompts []string
}

func (f *fakeAgent) Run(ctx context.Context, systemPrompt, question string) (*repository.AgentRunResult, error) {
	f.prompts = append(f.prompts, systemPrompt)
	if f.err != nil {
		return nil, f.err
	}
	return f.res, nil
}

type fakeHistoryRepo struct {
	entries   []*query.HistoryEntry
	appendErr error
}

func (f *fakeHistoryRepo) Append(ctx context.Context, entry *query.HistoryEntry) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeHistoryRepo) FindByQuestion(ctx context.Context, question string, limit int) ([]*query.HistoryEntry, error) {
	var out []*query.HistoryEntry
	for _, e := range f.entries {
		if e.Question == question {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeHistoryRepo) Counts(ctx context.Context) (repository.HistoryCounts, error) {
	c := repository.HistoryCounts{Total: int64(len(f.entries))}
	for _, e := range f.entries {
		if e.Success {
			c.Successful++
		}
	}
	c.Failed = c.Total - c.Successful
	return c, nil
}

func successAgent() *fakeAgent {
	rc := int64(3)
	return &fakeAgent{
		res: &repository.AgentRunResult{
			Answer:   "There are 3 open orders.",
			SQLText:  "SELECT COUNT(*) FROM ordhdr WHERE ordsts = 'O'",
			RowCount: &rc,
			Executed: true,
		},
	}
}

func newTestAnswerPipeline(t *testing.T, emb embedding.Embedder, vs *fakeVectorStore, agent repository.SQLAgent, hist repository.HistoryRepository) *AnswerPipeline {
	t.Helper()
	retriever, err := NewRetrievePipeline(emb, vs, testDim)
	if err != nil {
		t.Fatalf("NewRetrievePipeline: %v", err)
	}
	p, err := NewAnswerPipeline(retriever, agent, hist, vs, emb, testDim, AnswerOptions{
		DBName:   "ot_cdc",
		TopKRows: 10,
	})
	if err != nil {
		t.Fatalf("NewAnswerPipeline: %v", err)
	}
	return p
}

func TestAnswerSuccess(t *testing.T) {
	vs := &fakeVectorStore{
		docs: []repository.DocSearchHit{
			{ID: "d1", Title: "Ordhdr Table", Content: "order headers live here", Score: 0.9},
		},
	}
	hist := &fakeHistoryRepo{}
	agent := successAgent()
	p := newTestAnswerPipeline(t, mockEmbedding.NewMockEmbedder(testDim), vs, agent, hist)

	attempt, err := p.Answer(context.Background(), &AnswerRequest{Question: "how many open orders?"})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if attempt.Outcome != query.OutcomeSuccess {
		t.Errorf("outcome = %s, want success (%s)", attempt.Outcome, attempt.Message)
	}
	if attempt.GeneratedSQL == "" || attempt.RowCount == nil || *attempt.RowCount != 3 {
		t.Errorf("unexpected sql/rowcount: %q %v", attempt.GeneratedSQL, attempt.RowCount)
	}
	if len(hist.entries) != 1 {
		t.Fatalf("history entries = %d, want exactly 1", len(hist.entries))
	}
	entry := hist.entries[0]
	if !entry.Success || !entry.Embedded || entry.EntryId == "" {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if len(vs.inserted) != 1 || vs.inserted[0].ID != entry.EntryId {
		t.Errorf("history vector insert = %+v, want one record with entry id", vs.inserted)
	}
	// 上下文块进入了 system prompt
	if len(agent.prompts) != 1 || !strings.Contains(agent.prompts[0], "order headers live here") {
		t.Error("retrieved documentation missing from system prompt")
	}
}

func TestAnswerBlankQuestion(t *testing.T) {
	hist := &fakeHistoryRepo{}
	p := newTestAnswerPipeline(t, mockEmbedding.NewMockEmbedder(testDim), &fakeVectorStore{}, successAgent(), hist)

	_, err := p.Answer(context.Background(), &AnswerRequest{Question: "  "})
	if !errors.Is(err, xerr.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
	if len(hist.entries) != 0 {
		t.Errorf("blank question must not be recorded, got %d entries", len(hist.entries))
	}
}

func TestAnswerAgentFailureIsRecorded(t *testing.T) {
	hist := &fakeHistoryRepo{}
	agent := &fakeAgent{err: fmt.Errorf("model timeout")}
	p := newTestAnswerPipeline(t, mockEmbedding.NewMockEmbedder(testDim), &fakeVectorStore{}, agent, hist)

	attempt, err := p.Answer(context.Background(), &AnswerRequest{Question: "how many orders?"})
	if err != nil {
		t.Fatalf("agent failure must not surface as error: %v", err)
	}
	if attempt.Outcome != query.OutcomeFailure {
		t.Errorf("outcome = %s, want failure", attempt.Outcome)
	}
	if attempt.Message == "" {
		t.Error("expected failure message")
	}
	if len(hist.entries) != 1 || hist.entries[0].Success {
		t.Errorf("failed attempt must append one failed entry, got %+v", hist.entries)
	}
}

func TestAnswerExecErrorIsFailure(t *testing.T) {
	hist := &fakeHistoryRepo{}
	agent := &fakeAgent{
		res: &repository.AgentRunResult{
			Answer:  "I could not run the query.",
			SQLText: "SELECT * FROM missing_table",
			ExecErr: "Table 'ot_cdc.missing_table' doesn't exist",
		},
	}
	p := newTestAnswerPipeline(t, mockEmbedding.NewMockEmbedder(testDim), &fakeVectorStore{}, agent, hist)

	attempt, err := p.Answer(context.Background(), &AnswerRequest{Question: "whatever"})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if attempt.Outcome != query.OutcomeFailure {
		t.Errorf("outcome = %s, want failure", attempt.Outcome)
	}
	if !strings.Contains(attempt.Message, "doesn't exist") {
		t.Errorf("message = %q, want exec error carried through", attempt.Message)
	}
}

func TestAnswerEmbeddingFailureDegradesRecord(t *testing.T) {
	vs := &fakeVectorStore{}
	hist := &fakeHistoryRepo{}
	p := newTestAnswerPipeline(t, failingEmbedder{}, vs, successAgent(), hist)

	attempt, err := p.Answer(context.Background(), &AnswerRequest{Question: "how many orders?"})
	if err != nil {
		t.Fatalf("embedding failure must not surface as error: %v", err)
	}
	// 无上下文仍可成功回答
	if attempt.Outcome != query.OutcomeSuccess {
		t.Errorf("outcome = %s, want success", attempt.Outcome)
	}
	if len(attempt.Docs) != 0 || len(attempt.History) != 0 {
		t.Error("context should be empty when embedding is down")
	}
	// 记录降级为无向量条目
	if len(hist.entries) != 1 {
		t.Fatalf("history entries = %d, want 1", len(hist.entries))
	}
	if hist.entries[0].Embedded {
		t.Error("entry must be marked unembedded when embedding fails")
	}
	if len(vs.inserted) != 0 {
		t.Errorf("no vector insert expected, got %d", len(vs.inserted))
	}
}

func TestAnswerVectorInsertFailureDegradesRecord(t *testing.T) {
	vs := &fakeVectorStore{insertErr: fmt.Errorf("milvus down")}
	hist := &fakeHistoryRepo{}
	p := newTestAnswerPipeline(t, mockEmbedding.NewMockEmbedder(testDim), vs, successAgent(), hist)

	_, err := p.Answer(context.Background(), &AnswerRequest{Question: "how many orders?"})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if len(hist.entries) != 1 || hist.entries[0].Embedded {
		t.Errorf("entry must fall back to unembedded, got %+v", hist.entries)
	}
}

func TestAnswerNeverDedupes(t *testing.T) {
	hist := &fakeHistoryRepo{}
	p := newTestAnswerPipeline(t, mockEmbedding.NewMockEmbedder(testDim), &fakeVectorStore{}, successAgent(), hist)

	for i := 0; i < 2; i++ {
		if _, err := p.Answer(context.Background(), &AnswerRequest{Question: "how many open orders?"}); err != nil {
			t.Fatalf("Answer #%d: %v", i+1, err)
		}
	}
	if len(hist.entries) != 2 {
		t.Fatalf("history entries = %d, want 2 (no dedup)", len(hist.entries))
	}
	if hist.entries[0].EntryId == hist.entries[1].EntryId {
		t.Error("entries must have distinct ids")
	}
}

func TestBuildContextBlockBudget(t *testing.T) {
	res := &RetrieveResult{
		Docs: []query.DocHit{
			{Chunk: query.DocumentChunk{Title: "A", Content: strings.Repeat("a", 50)}, Score: 0.9},
			{Chunk: query.DocumentChunk{Title: "B", Content: strings.Repeat("b", 50)}, Score: 0.5},
		},
		History: []query.HistoryHit{
			{Question: "q1", SqlText: "SELECT 1", Success: true, Score: 0.7},
		},
	}

	full := buildContextBlock(res, 0)
	for _, want := range []string{"A", "B", "q1", "SELECT 1"} {
		if !strings.Contains(full, want) {
			t.Errorf("unbudgeted block missing %q", want)
		}
	}

	// 预算只够高分条目，低分文档 B 被丢弃
	tight := buildContextBlock(res, 120)
	if !strings.Contains(tight, strings.Repeat("a", 50)) {
		t.Error("highest scored doc must survive truncation")
	}
	if strings.Contains(tight, strings.Repeat("b", 50)) {
		t.Error("lowest scored doc must be dropped first")
	}
}
