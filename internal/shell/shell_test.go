package shell

import (
	"context"
	"strings"
	"testing"

	"QueryLink/internal/modules/assistant/application/dto/request"
	"QueryLink/internal/modules/assistant/application/dto/respond"
	"QueryLink/pkg/xerr"
)

type fakeService struct {
	answered     []string
	suggestedFor []string
}

func (f *fakeService) Answer(ctx context.Context, req request.QueryRequest) (*respond.QueryRespond, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, xerr.ErrInvalidInput
	}
	f.answered = append(f.answered, req.Question)
	return &respond.QueryRespond{
		Question:     req.Question,
		Answer:       "There are 3 open orders.",
		GeneratedSQL: "SELECT COUNT(*) FROM ordhdr WHERE ordsts = 'O'",
		Outcome:      "success",
	}, nil
}

func (f *fakeService) Tables(ctx context.Context) (*respond.TablesRespond, error) {
	return &respond.TablesRespond{Tables: []string{"ordhdr", "ordlin"}}, nil
}

func (f *fakeService) Stats(ctx context.Context) (*respond.StatsRespond, error) {
	return &respond.StatsRespond{TotalQueries: 5, SuccessfulQueries: 4, FailedQueries: 1, DocChunks: 12}, nil
}

func (f *fakeService) Suggestions(ctx context.Context, partial string) (*respond.SuggestionsRespond, error) {
	f.suggestedFor = append(f.suggestedFor, partial)
	return &respond.SuggestionsRespond{Suggestions: []string{"How many open orders?"}}, nil
}

func newTestShell(t *testing.T) (*Shell, *fakeService, *strings.Builder) {
	t.Helper()
	svc := &fakeService{}
	out := &strings.Builder{}
	sh, err := NewShell(svc, strings.NewReader(""), out)
	if err != nil {
		t.Fatalf("NewShell: %v", err)
	}
	return sh, svc, out
}

func TestDispatchQuit(t *testing.T) {
	for _, cmd := range []string{"quit", "exit", "q", "QUIT"} {
		sh, _, _ := newTestShell(t)
		if !sh.Dispatch(context.Background(), cmd) {
			t.Errorf("Dispatch(%q) = false, want true", cmd)
		}
	}
}

func TestDispatchHelp(t *testing.T) {
	sh, _, out := newTestShell(t)
	if sh.Dispatch(context.Background(), "help") {
		t.Fatal("help must not quit")
	}
	if !strings.Contains(out.String(), "Commands:") {
		t.Errorf("help output missing command list: %q", out.String())
	}
}

func TestDispatchTables(t *testing.T) {
	sh, _, out := newTestShell(t)
	sh.Dispatch(context.Background(), "tables")
	got := out.String()
	if !strings.Contains(got, "ordhdr") || !strings.Contains(got, "ordlin") {
		t.Errorf("tables output = %q", got)
	}
}

func TestDispatchStats(t *testing.T) {
	sh, _, out := newTestShell(t)
	sh.Dispatch(context.Background(), "stats")
	got := out.String()
	if !strings.Contains(got, "5 total") || !strings.Contains(got, "4 successful") {
		t.Errorf("stats output = %q", got)
	}
}

func TestDispatchSuggestions(t *testing.T) {
	sh, svc, out := newTestShell(t)
	sh.Dispatch(context.Background(), "suggestions open orders")
	if len(svc.suggestedFor) != 1 || svc.suggestedFor[0] != "open orders" {
		t.Errorf("suggestions called with %v", svc.suggestedFor)
	}
	if !strings.Contains(out.String(), "How many open orders?") {
		t.Errorf("suggestions output = %q", out.String())
	}
}

func TestDispatchSuggestionsUsage(t *testing.T) {
	sh, svc, out := newTestShell(t)
	sh.Dispatch(context.Background(), "suggestions")
	if len(svc.suggestedFor) != 0 {
		t.Error("bare suggestions must not call the service")
	}
	if !strings.Contains(out.String(), "usage:") {
		t.Errorf("expected usage hint, got %q", out.String())
	}
}

func TestDispatchFreeTextAnswers(t *testing.T) {
	sh, svc, out := newTestShell(t)
	sh.Dispatch(context.Background(), "how many open orders are there?")
	if len(svc.answered) != 1 {
		t.Fatalf("answered = %v, want one question", svc.answered)
	}
	got := out.String()
	if !strings.Contains(got, "There are 3 open orders.") || !strings.Contains(got, "[sql]") {
		t.Errorf("answer output = %q", got)
	}
}

func TestDispatchEmptyLine(t *testing.T) {
	sh, svc, _ := newTestShell(t)
	if sh.Dispatch(context.Background(), "   ") {
		t.Error("empty line must not quit")
	}
	if len(svc.answered) != 0 {
		t.Error("empty line must not reach the service")
	}
}

func TestRunQuitsOnCommand(t *testing.T) {
	svc := &fakeService{}
	out := &strings.Builder{}
	sh, err := NewShell(svc, strings.NewReader("tables\nquit\n"), out)
	if err != nil {
		t.Fatalf("NewShell: %v", err)
	}
	if err := sh.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "bye") {
		t.Errorf("expected farewell, got %q", out.String())
	}
}
