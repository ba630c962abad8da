package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"QueryLink/internal/modules/assistant/application/dto/request"
	"QueryLink/internal/modules/assistant/application/service"
	"QueryLink/pkg/xerr"
)

const helpText = `Ask a question in plain English and it will be answered with SQL.

Commands:
  tables                 list tables in the target database
  stats                  show query history statistics
  suggestions <text>     suggest past questions similar to <text>
  help                   show this help
  quit | exit | q        leave the shell
`

// Shell 交互式问答 REPL。输入输出通过 io 接口注入，便于测试。
type Shell struct {
	svc service.AssistantService
	in  io.Reader
	out io.Writer
}

// NewShell 创建 Shell
func NewShell(svc service.AssistantService, in io.Reader, out io.Writer) (*Shell, error) {
	if svc == nil {
		return nil, fmt.Errorf("assistant service is nil")
	}
	if in == nil || out == nil {
		return nil, fmt.Errorf("shell io is nil")
	}
	return &Shell{svc: svc, in: in, out: out}, nil
}

// Run 阻塞运行直到 EOF、退出命令或 ctx 取消
func (s *Shell) Run(ctx context.Context) error {
	fmt.Fprintln(s.out, "QueryLink — ask your database in plain English. Type 'help' for commands.")
	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		fmt.Fprint(s.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(s.out)
			return scanner.Err()
		}

		if quit := s.Dispatch(ctx, scanner.Text()); quit {
			return nil
		}
	}
}

// Dispatch 处理一行输入，返回是否退出
func (s *Shell) Dispatch(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	cmd, rest := splitCommand(line)
	switch cmd {
	case "quit", "exit", "q":
		fmt.Fprintln(s.out, "bye")
		return true
	case "help":
		fmt.Fprint(s.out, helpText)
	case "tables":
		s.printTables(ctx)
	case "stats":
		s.printStats(ctx)
	case "suggestions":
		s.printSuggestions(ctx, rest)
	default:
		s.answer(ctx, line)
	}
	return false
}

func splitCommand(line string) (cmd, rest string) {
	parts := strings.SplitN(line, " ", 2)
	cmd = strings.ToLower(strings.TrimSpace(parts[0]))
	if len(parts) > 1 {
		rest = strings.TrimSpace(parts[1])
	}
	return cmd, rest
}

func (s *Shell) printTables(ctx context.Context) {
	res, err := s.svc.Tables(ctx)
	if err != nil {
		fmt.Fprintf(s.out, "error: %v\n", err)
		return
	}
	if len(res.Tables) == 0 {
		fmt.Fprintln(s.out, "no tables found")
		return
	}
	for _, t := range res.Tables {
		fmt.Fprintf(s.out, "  %s\n", t)
	}
}

func (s *Shell) printStats(ctx context.Context) {
	res, err := s.svc.Stats(ctx)
	if err != nil {
		fmt.Fprintf(s.out, "error: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "  queries:    %d total, %d successful, %d failed\n",
		res.TotalQueries, res.SuccessfulQueries, res.FailedQueries)
	fmt.Fprintf(s.out, "  doc chunks: %d\n", res.DocChunks)
}

func (s *Shell) printSuggestions(ctx context.Context, partial string) {
	if partial == "" {
		fmt.Fprintln(s.out, "usage: suggestions <text>")
		return
	}
	res, err := s.svc.Suggestions(ctx, partial)
	if err != nil {
		fmt.Fprintf(s.out, "error: %v\n", err)
		return
	}
	if len(res.Suggestions) == 0 {
		fmt.Fprintln(s.out, "no similar past questions")
		return
	}
	for i, q := range res.Suggestions {
		fmt.Fprintf(s.out, "  %d. %s\n", i+1, q)
	}
}

func (s *Shell) answer(ctx context.Context, question string) {
	res, err := s.svc.Answer(ctx, request.QueryRequest{Question: question})
	if err != nil {
		if errors.Is(err, xerr.ErrInvalidInput) {
			fmt.Fprintln(s.out, "please type a question")
		} else {
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
		return
	}

	fmt.Fprintln(s.out, res.Answer)
	if res.GeneratedSQL != "" {
		fmt.Fprintf(s.out, "\n[sql] %s\n", res.GeneratedSQL)
	}
	if res.Outcome != "success" && res.Message != "" {
		fmt.Fprintf(s.out, "[note] %s\n", res.Message)
	}
}
