package sqlagent

import (
	"context"
	"fmt"
	"time"

	"QueryLink/internal/config"

	einomcp "github.com/cloudwego/eino-ext/components/tool/mcp"
	"github.com/cloudwego/eino/components/tool"
	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
)

// MCPTools 连接配置的 MCP Server 并将其工具转换为 eino 工具。
// 连接失败不致命，agent 退化为仅本地数据库工具。
func MCPTools(ctx context.Context, conf *config.Config) ([]tool.BaseTool, error) {
	serverURL := conf.MCPConfig.ServerURL
	if serverURL == "" {
		return nil, fmt.Errorf("mcp server url is empty")
	}

	initTimeout := 10 * time.Second
	if conf.MCPConfig.ServerInitTimeoutSeconds > 0 {
		initTimeout = time.Duration(conf.MCPConfig.ServerInitTimeoutSeconds) * time.Second
	}
	initCtx, cancel := context.WithTimeout(ctx, initTimeout)
	defer cancel()

	cli, err := mcpclient.NewSSEMCPClient(serverURL)
	if err != nil {
		return nil, err
	}
	if err := cli.Start(initCtx); err != nil {
		return nil, err
	}

	initReq := mcpgo.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcpgo.Implementation{
		Name:    "querylink",
		Version: "1.0.0",
	}
	if _, err := cli.Initialize(initCtx, initReq); err != nil {
		return nil, err
	}

	mcpConf := &einomcp.Config{Cli: cli}
	if len(conf.MCPConfig.ToolNames) > 0 {
		mcpConf.ToolNameList = conf.MCPConfig.ToolNames
	}
	return einomcp.GetTools(ctx, mcpConf)
}
