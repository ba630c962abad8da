package sqlagent

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"QueryLink/internal/config"
	"QueryLink/internal/modules/assistant/domain/repository"
	"QueryLink/pkg/zlog"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/flow/agent/react"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Agent repository.SQLAgent 的 eino ReAct 实现。模型通过工具调用
// 自主内省库表并执行只读 SQL；执行轨迹经 runCapture 带回。
type Agent struct {
	ra *react.Agent
}

var _ repository.SQLAgent = (*Agent)(nil)

func NewAgent(ctx context.Context, cm model.ToolCallingChatModel, db *gorm.DB, conf *config.Config) (*Agent, error) {
	if cm == nil {
		return nil, fmt.Errorf("chat model is nil")
	}
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}

	maxRows := conf.AgentConfig.TopKRows
	if maxRows <= 0 {
		maxRows = 10
	}
	tools, err := buildDBTools(db, maxRows*2)
	if err != nil {
		return nil, err
	}

	// 可选：挂载外部 MCP 工具服务提供的额外工具
	if conf.MCPConfig.Enabled {
		mcpTools, err := MCPTools(ctx, conf)
		if err != nil {
			zlog.Warn("mcp tools unavailable, continuing with local tools only",
				zap.String("server", conf.MCPConfig.ServerURL),
				zap.Error(err))
		} else {
			tools = append(tools, mcpTools...)
		}
	}

	maxStep := conf.AgentConfig.MaxSteps
	if maxStep <= 0 {
		maxStep = 12
	}

	ra, err := react.NewAgent(ctx, &react.AgentConfig{
		ToolCallingModel: cm,
		ToolsConfig:      compose.ToolsNodeConfig{Tools: tools},
		MaxStep:          maxStep,
	})
	if err != nil {
		return nil, err
	}
	return &Agent{ra: ra}, nil
}

// Run 执行一轮问答。返回 error 仅代表 agent 本身运行失败；
// SQL 执行失败体现在结果的 Executed/ExecErr 上。
func (a *Agent) Run(ctx context.Context, systemPrompt, question string) (*repository.AgentRunResult, error) {
	cap := &runCapture{}
	ctx = withCapture(ctx, cap)

	msgs := []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(question),
	}
	out, err := a.ra.Generate(ctx, msgs)
	if err != nil {
		return nil, err
	}

	cap.mu.Lock()
	res := &repository.AgentRunResult{
		Answer:   out.Content,
		SQLText:  cap.SQLText,
		Executed: cap.Executed,
		ExecErr:  cap.ExecErr,
	}
	if cap.Executed {
		rc := cap.RowCount
		res.RowCount = &rc
	}
	cap.mu.Unlock()

	// 兜底：模型绕过 execute_sql 直接在回答里给出 SQL 时尝试提取
	if res.SQLText == "" {
		res.SQLText = ExtractSQL(res.Answer)
	}
	return res, nil
}

var sqlPatterns = []*regexp.Regexp{
	regexp.MustCompile("(?is)```sql\\s*(.+?)```"),
	regexp.MustCompile("(?is)```\\s*(select.+?)```"),
	regexp.MustCompile("(?is)`(select[^`]+)`"),
	regexp.MustCompile("(?is)(select\\s.+?;)"),
}

// ExtractSQL 从回答文本中提取 SQL（代码块、反引号、裸语句依次尝试）
func ExtractSQL(answer string) string {
	for _, p := range sqlPatterns {
		if m := p.FindStringSubmatch(answer); len(m) > 1 {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

// AvailableTables 静态命令 tables 用，不经过 agent
func AvailableTables(ctx context.Context, db *gorm.DB) ([]string, error) {
	var tables []string
	if err := db.WithContext(ctx).Raw("SHOW TABLES").Scan(&tables).Error; err != nil {
		return nil, err
	}
	return tables, nil
}
