package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"QueryLink/internal/modules/assistant/domain/query"
	"QueryLink/internal/modules/assistant/domain/repository"
	"QueryLink/internal/modules/assistant/infrastructure/sqlagent"
	"QueryLink/pkg/util"
	"QueryLink/pkg/xerr"
	"QueryLink/pkg/zlog"

	"github.com/cloudwego/eino/compose"
	"go.uber.org/zap"
)

// answerState 问答 Pipeline 的中间状态（在节点间传递）
type answerState struct {
	Req          *AnswerRequest             // 原始请求
	Retrieved    *RetrieveResult            // 召回结果（失败时为空结果）
	SystemPrompt string                     // system prompt（含上下文块）
	AgentRes     *repository.AgentRunResult // agent 运行结果
	Outcome      query.Outcome              // 本次尝试的结果分类
	Message      string                     // 失败原因或降级说明
	EntryId      string                     // 写入历史的记录 ID
	Embedded     bool                       // 历史记录是否成功向量化
	Start        time.Time                  // 开始时间
	Err          error                      // 仅 InvalidInput 会对外抛出
}

// buildGraph 构建问答 Pipeline 的 Eino Graph
//
// 节点顺序：Validate → Retrieve → BuildPrompt → RunAgent → Record → BuildResult
func (p *AnswerPipeline) buildGraph(ctx context.Context) (compose.Runnable[*AnswerRequest, *query.QueryAttempt], error) {
	const (
		Validate    = "Validate"
		Retrieve    = "Retrieve"
		BuildPrompt = "BuildPrompt"
		RunAgent    = "RunAgent"
		Record      = "Record"
		BuildResult = "BuildResult"
	)
	g := compose.NewGraph[*AnswerRequest, *query.QueryAttempt]()
	_ = g.AddLambdaNode(Validate, compose.InvokableLambdaWithOption(p.validateNode), compose.WithNodeName(Validate))
	_ = g.AddLambdaNode(Retrieve, compose.InvokableLambdaWithOption(p.retrieveNode), compose.WithNodeName(Retrieve))
	_ = g.AddLambdaNode(BuildPrompt, compose.InvokableLambdaWithOption(p.buildPromptNode), compose.WithNodeName(BuildPrompt))
	_ = g.AddLambdaNode(RunAgent, compose.InvokableLambdaWithOption(p.runAgentNode), compose.WithNodeName(RunAgent))
	_ = g.AddLambdaNode(Record, compose.InvokableLambdaWithOption(p.recordNode), compose.WithNodeName(Record))
	_ = g.AddLambdaNode(BuildResult, compose.InvokableLambdaWithOption(p.buildResultNode), compose.WithNodeName(BuildResult))
	_ = g.AddEdge(compose.START, Validate)
	_ = g.AddEdge(Validate, Retrieve)
	_ = g.AddEdge(Retrieve, BuildPrompt)
	_ = g.AddEdge(BuildPrompt, RunAgent)
	_ = g.AddEdge(RunAgent, Record)
	_ = g.AddEdge(Record, BuildResult)
	_ = g.AddEdge(BuildResult, compose.END)
	return g.Compile(ctx, compose.WithGraphName("AnswerPipeline"), compose.WithNodeTriggerMode(compose.AllPredecessor))
}

// validateNode 节点 1：校验问题非空。
// 这是唯一会让 Answer 对外返回 error 的检查。
func (p *AnswerPipeline) validateNode(ctx context.Context, req *AnswerRequest, _ ...any) (*answerState, error) {
	_ = ctx
	st := &answerState{
		Req:   req,
		Start: time.Now(),
	}
	if req == nil {
		st.Err = fmt.Errorf("answer request is nil")
		return st, nil
	}
	question := strings.TrimSpace(req.Question)
	req.Question = question
	if question == "" {
		st.Err = xerr.ErrInvalidInput
		return st, nil
	}
	return st, nil
}

// retrieveNode 节点 2：召回上下文。
// 召回失败（含向量化失败）降级为空上下文继续，不中止问答。
func (p *AnswerPipeline) retrieveNode(ctx context.Context, st *answerState, _ ...any) (*answerState, error) {
	if st == nil {
		return &answerState{Err: fmt.Errorf("nil state"), Start: time.Now()}, nil
	}
	if st.Err != nil {
		return st, nil
	}
	res, err := p.retriever.Retrieve(ctx, &RetrieveRequest{
		Question: st.Req.Question,
		KDocs:    p.opts.KDocs,
		KHistory: p.opts.KHistory,
	})
	if err != nil {
		zlog.Warn("retrieval failed, answering without context",
			zap.String("question", st.Req.Question),
			zap.Error(err))
		res = &RetrieveResult{Question: st.Req.Question, IsEmpty: true}
	}
	st.Retrieved = res
	return st, nil
}

// buildPromptNode 节点 3：拼装 system prompt + 上下文块
func (p *AnswerPipeline) buildPromptNode(ctx context.Context, st *answerState, _ ...any) (*answerState, error) {
	_ = ctx
	if st == nil {
		return &answerState{Err: fmt.Errorf("nil state"), Start: time.Now()}, nil
	}
	if st.Err != nil {
		return st, nil
	}
	prompt := sqlagent.BuildSystemPrompt(p.opts.DBName, p.opts.TopKRows)
	block := buildContextBlock(st.Retrieved, p.opts.MaxContextChars)
	if block != "" {
		prompt = prompt + "\n\n" + block
	}
	st.SystemPrompt = prompt
	return st, nil
}

// runAgentNode 节点 4：运行 SQL agent。
// agent 故障折叠为 failure 结果，不对外抛错。
func (p *AnswerPipeline) runAgentNode(ctx context.Context, st *answerState, _ ...any) (*answerState, error) {
	if st == nil {
		return &answerState{Err: fmt.Errorf("nil state"), Start: time.Now()}, nil
	}
	if st.Err != nil {
		return st, nil
	}
	res, err := p.agent.Run(ctx, st.SystemPrompt, st.Req.Question)
	if err != nil {
		zlog.Error("sql agent run failed",
			zap.String("question", st.Req.Question),
			zap.Error(err))
		st.AgentRes = &repository.AgentRunResult{
			Answer: "I could not answer this question due to an internal error.",
		}
		st.Outcome = query.OutcomeFailure
		st.Message = fmt.Sprintf("%s: %v", xerr.ErrAgentExecution.Message, err)
		return st, nil
	}
	st.AgentRes = res
	// 成功判定：agent 至少执行了一条语句且最后一次执行无错
	if res.Executed && res.ExecErr == "" {
		st.Outcome = query.OutcomeSuccess
	} else {
		st.Outcome = query.OutcomeFailure
		if res.ExecErr != "" {
			st.Message = res.ExecErr
		} else {
			st.Message = "agent produced no executed statement"
		}
	}
	return st, nil
}

// recordNode 节点 5：无条件追加历史记录。
// 成功失败都记，不去重；向量化失败降级为无向量记录（Embedded=false）。
// 记录本身的任何故障只记日志，不影响问答结果。
func (p *AnswerPipeline) recordNode(ctx context.Context, st *answerState, _ ...any) (*answerState, error) {
	if st == nil {
		return &answerState{Err: fmt.Errorf("nil state"), Start: time.Now()}, nil
	}
	if st.Err != nil {
		return st, nil
	}
	st.EntryId = util.GenerateUUID()
	now := time.Now()

	sqlText := ""
	var rowCount *int64
	if st.AgentRes != nil {
		sqlText = st.AgentRes.SQLText
		rowCount = st.AgentRes.RowCount
	}

	// 先尝试向量化并写 Milvus，成败决定 Embedded 标记
	st.Embedded = p.recordVector(ctx, st.EntryId, st.Req.Question, sqlText, st.Outcome, rowCount, now)

	entry := &query.HistoryEntry{
		EntryId:   st.EntryId,
		Question:  st.Req.Question,
		SqlText:   sqlText,
		Success:   st.Outcome == query.OutcomeSuccess,
		RowCount:  rowCount,
		Embedded:  st.Embedded,
		CreatedAt: now,
	}
	if err := p.histRepo.Append(ctx, entry); err != nil {
		zlog.Error("history append failed",
			zap.String("entry_id", st.EntryId),
			zap.Error(err))
	}
	return st, nil
}

// recordVector 历史记录的向量侧写入，返回是否成功
func (p *AnswerPipeline) recordVector(ctx context.Context, entryId, question, sqlText string, outcome query.Outcome, rowCount *int64, now time.Time) bool {
	vecs, err := p.embedder.EmbedStrings(ctx, []string{question})
	if err != nil || len(vecs) == 0 || len(vecs[0]) != p.vectorDim {
		zlog.Warn("history embedding failed, recording without vector",
			zap.String("entry_id", entryId),
			zap.Error(err))
		return false
	}
	vec32 := make([]float32, len(vecs[0]))
	for i, v := range vecs[0] {
		vec32[i] = float32(v)
	}
	rc := int64(-1)
	if rowCount != nil {
		rc = *rowCount
	}
	rec := repository.HistoryVectorRecord{
		ID:        entryId,
		Vector:    vec32,
		Question:  question,
		SqlText:   sqlText,
		Success:   outcome == query.OutcomeSuccess,
		RowCount:  rc,
		CreatedAt: now.Format(time.RFC3339),
	}
	if err := p.vs.InsertHistory(ctx, rec); err != nil {
		zlog.Warn("history vector insert failed, recording without vector",
			zap.String("entry_id", entryId),
			zap.Error(err))
		return false
	}
	return true
}

// buildResultNode 节点 6：组装 QueryAttempt
func (p *AnswerPipeline) buildResultNode(ctx context.Context, st *answerState, _ ...any) (*query.QueryAttempt, error) {
	_ = ctx
	if st == nil {
		return nil, fmt.Errorf("nil state")
	}
	if st.Err != nil {
		return nil, st.Err
	}
	attempt := &query.QueryAttempt{
		Question:   st.Req.Question,
		Outcome:    st.Outcome,
		Message:    st.Message,
		EntryId:    st.EntryId,
		DurationMs: time.Since(st.Start).Milliseconds(),
	}
	if st.Retrieved != nil {
		attempt.Docs = st.Retrieved.Docs
		attempt.History = st.Retrieved.History
	}
	if st.AgentRes != nil {
		attempt.GeneratedSQL = st.AgentRes.SQLText
		attempt.Answer = st.AgentRes.Answer
		attempt.RowCount = st.AgentRes.RowCount
	}
	zlog.Info("answer done",
		zap.String("entry_id", attempt.EntryId),
		zap.String("question", attempt.Question),
		zap.String("outcome", string(attempt.Outcome)),
		zap.Int("doc_hits", len(attempt.Docs)),
		zap.Int("history_hits", len(attempt.History)),
		zap.Bool("embedded", st.Embedded),
		zap.Int64("duration_ms", attempt.DurationMs),
	)
	return attempt, nil
}

// contextItem 上下文块候选条目（文档与历史统一参与字符预算分配）
type contextItem struct {
	score float32
	text  string
	isDoc bool
}

// buildContextBlock 将召回结果渲染为 prompt 上下文块。
// 条目按得分降序放入 rune 预算，放不下的低分条目直接丢弃。
func buildContextBlock(res *RetrieveResult, maxChars int) string {
	if res == nil || (len(res.Docs) == 0 && len(res.History) == 0) {
		return ""
	}

	items := make([]contextItem, 0, len(res.Docs)+len(res.History))
	for _, d := range res.Docs {
		text := fmt.Sprintf("### %s\n%s", d.Chunk.Title, d.Chunk.Content)
		items = append(items, contextItem{score: d.Score, text: text, isDoc: true})
	}
	for _, h := range res.History {
		outcome := "succeeded"
		if !h.Success {
			outcome = "failed"
		}
		text := fmt.Sprintf("Q: %s\nSQL: %s\n(this query %s)", h.Question, h.SqlText, outcome)
		items = append(items, contextItem{score: h.Score, text: text})
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].score > items[j].score
	})

	var docs, hist []string
	used := 0
	for _, it := range items {
		n := len([]rune(it.text))
		if maxChars > 0 && used+n > maxChars {
			continue
		}
		used += n
		if it.isDoc {
			docs = append(docs, it.text)
		} else {
			hist = append(hist, it.text)
		}
	}
	if len(docs) == 0 && len(hist) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Use the following context when it is relevant to the question.\n")
	if len(docs) > 0 {
		b.WriteString("\n## Relevant documentation\n")
		b.WriteString(strings.Join(docs, "\n\n"))
		b.WriteString("\n")
	}
	if len(hist) > 0 {
		b.WriteString("\n## Similar past queries\n")
		b.WriteString(strings.Join(hist, "\n\n"))
		b.WriteString("\n")
	}
	return b.String()
}
