package kit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func TestChain_Order(t *testing.T) {
	var order []string

	mw := func(name string) Middleware {
		return func(next Endpoint) Endpoint {
			return func(ctx context.Context, req any) (any, error) {
				order = append(order, name+"_before")
				resp, err := next(ctx, req)
				order = append(order, name+"_after")
				return resp, err
			}
		}
	}

	base := func(_ context.Context, _ any) (any, error) {
		order = append(order, "endpoint")
		return "ok", nil
	}

	chained := Chain(mw("a"), mw("b"), mw("c"))(base)
	resp, err := chained(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp != "ok" {
		t.Fatalf("response: got %v", resp)
	}

	expected := []string{"a_before", "b_before", "c_before", "endpoint", "c_after", "b_after", "a_after"}
	if len(order) != len(expected) {
		t.Fatalf("order length: got %d, want %d", len(order), len(expected))
	}
	for i, v := range expected {
		if order[i] != v {
			t.Fatalf("order[%d]: got %q, want %q", i, order[i], v)
		}
	}
}

func TestChain_ErrorPropagation(t *testing.T) {
	errFail := errors.New("fail")
	base := func(_ context.Context, _ any) (any, error) {
		return nil, errFail
	}

	noop := func(next Endpoint) Endpoint { return next }
	chained := Chain(noop)(base)

	_, err := chained(context.Background(), nil)
	if !errors.Is(err, errFail) {
		t.Fatalf("error: got %v, want %v", err, errFail)
	}
}

func TestTimeout(t *testing.T) {
	// WHAT: Timeout puts a deadline on endpoints that would otherwise wait forever.
	slow := func(ctx context.Context, _ any) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	_, err := Timeout(10*time.Millisecond)(slow)(context.Background(), nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error: got %v, want DeadlineExceeded", err)
	}
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ok := func(context.Context, any) (any, error) { return 1, nil }
	fail := func(context.Context, any) (any, error) { return nil, errors.New("boom") }

	ctx := WithRequestID(WithTransport(context.Background(), "mcp"), "req_1")
	Logging(logger, "heal_text")(ok)(ctx, nil)
	Logging(logger, "heal_click")(fail)(ctx, nil)

	out := buf.String()
	for _, want := range []string{"tool=heal_text", "transport=mcp", "request_id=req_1", "level=WARN", "error=boom"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestContext_Defaults(t *testing.T) {
	ctx := context.Background()
	if v := GetTransport(ctx); v != "http" {
		t.Fatalf("default transport: got %q, want 'http'", v)
	}
	if v := GetRequestID(ctx); v != "" {
		t.Fatalf("request_id default: got %q", v)
	}
	if v := GetSessionID(ctx); v != "" {
		t.Fatalf("session_id default: got %q", v)
	}
	ctx = WithSessionID(ctx, "ses_1")
	if v := GetSessionID(ctx); v != "ses_1" {
		t.Fatalf("session_id: got %q", v)
	}
}

type echoRequest struct {
	Word string `json:"word"`
}

func mcpClient(t *testing.T, register func(*mcp.Server)) *mcp.ClientSession {
	t.Helper()
	impl := &mcp.Implementation{Name: "kit-test", Version: "0.0.1"}
	srv := mcp.NewServer(impl, nil)
	register(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() {
		_ = srv.Run(ctx, serverT)
	}()

	session, err := mcp.NewClient(impl, nil).Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func TestRegisterMCPTool(t *testing.T) {
	var seenTransport, seenRequestID string
	session := mcpClient(t, func(srv *mcp.Server) {
		tool := &mcp.Tool{
			Name:        "echo",
			Description: "Echo a word.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"word": map[string]any{"type": "string"}},
			},
		}
		endpoint := func(ctx context.Context, req any) (any, error) {
			seenTransport = GetTransport(ctx)
			seenRequestID = GetRequestID(ctx)
			r := req.(*echoRequest)
			if r.Word == "" {
				return nil, errors.New("word is required")
			}
			return map[string]string{"echo": r.Word}, nil
		}
		RegisterMCPTool(srv, tool, endpoint, DecodeJSON[echoRequest]())
	})

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "echo",
		Arguments: map[string]any{"word": "hi"},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if err := res.GetError(); err != nil {
		t.Fatalf("tool error: %v", err)
	}
	if text := res.Content[0].(*mcp.TextContent).Text; text != `{"echo":"hi"}` {
		t.Fatalf("content: got %s", text)
	}
	if seenTransport != "mcp" || seenRequestID == "" {
		t.Fatalf("context: transport=%q request_id=%q", seenTransport, seenRequestID)
	}

	res, err = session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "echo",
		Arguments: map[string]any{},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !res.IsError {
		t.Fatal("empty word: expected tool error")
	}
}
