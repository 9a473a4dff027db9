package normalize

import (
	"testing"
	"time"

	"github.com/user/agentgate/internal/session"
	"github.com/user/agentgate/internal/types"
	"github.com/user/agentgate/pkg/oai"
)

var allowed = []string{"claude-sonnet-4-20250514", "claude-3-5-haiku-20241022"}

func newNormalizer() (*Normalizer, *session.Manager) {
	sessions := session.NewManager(time.Hour, nil)
	return New(sessions, allowed, nil), sessions
}

func chatReq(content string) *oai.ChatCompletionRequest {
	return &oai.ChatCompletionRequest{
		Model:    "claude-sonnet-4-20250514",
		Messages: []oai.Message{{Role: "user", Content: content}},
	}
}

func TestNormalizeBasic(t *testing.T) {
	n, _ := newNormalizer()

	out, err := n.Normalize(chatReq("hello"))
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Desc.Messages) != 1 || out.Desc.Messages[0].Content != "hello" {
		t.Errorf("unexpected messages: %+v", out.Desc.Messages)
	}
	if out.SessionKey != "" {
		t.Errorf("expected stateless request, got session %q", out.SessionKey)
	}
}

func TestNormalizeRejectsUnknownModel(t *testing.T) {
	n, _ := newNormalizer()

	req := chatReq("hi")
	req.Model = "gpt-4"
	_, err := n.Normalize(req)
	if err == nil {
		t.Fatal("expected unknown model error")
	}
	if types.KindOf(err) != types.KindUnknownModel {
		t.Errorf("expected unknown_model, got %s", types.KindOf(err))
	}
}

func TestNormalizeRejectsEmptyMessages(t *testing.T) {
	n, _ := newNormalizer()

	req := &oai.ChatCompletionRequest{Model: "claude-3-5-haiku-20241022"}
	_, err := n.Normalize(req)
	if err == nil {
		t.Fatal("expected empty request error")
	}
	if types.KindOf(err) != types.KindEmptyRequest {
		t.Errorf("expected empty_request, got %s", types.KindOf(err))
	}
}

func TestNormalizeRejectsMissingModel(t *testing.T) {
	n, _ := newNormalizer()

	req := chatReq("hi")
	req.Model = ""
	_, err := n.Normalize(req)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if types.KindOf(err) != types.KindValidation {
		t.Errorf("expected validation_error, got %s", types.KindOf(err))
	}
}

func TestNormalizeFirstSystemMessageWins(t *testing.T) {
	n, _ := newNormalizer()

	req := &oai.ChatCompletionRequest{
		Model: "claude-sonnet-4-20250514",
		Messages: []oai.Message{
			{Role: "system", Content: "you are terse"},
			{Role: "user", Content: "hi"},
			{Role: "system", Content: "you are verbose"},
			{Role: "user", Content: "bye"},
		},
	}
	out, err := n.Normalize(req)
	if err != nil {
		t.Fatal(err)
	}
	if out.Desc.System != "you are terse" {
		t.Errorf("expected first system message, got %q", out.Desc.System)
	}
	// The second system message survives as user content in order.
	if len(out.Desc.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %+v", out.Desc.Messages)
	}
	if out.Desc.Messages[1].Role != "user" || out.Desc.Messages[1].Content != "you are verbose" {
		t.Errorf("expected demoted system message, got %+v", out.Desc.Messages[1])
	}
	if out.Desc.Messages[2].Content != "bye" {
		t.Errorf("message order broken: %+v", out.Desc.Messages)
	}
}

func TestNormalizeMergesHistory(t *testing.T) {
	n, sessions := newNormalizer()
	key := types.SessionKey("conv-1")

	sessions.GetOrCreate(key)
	err := sessions.AppendTurn(key, types.Turn{
		Messages: []oai.Message{{Role: "user", Content: "first"}},
		Response: oai.Message{Role: "assistant", Content: "first reply"},
	})
	if err != nil {
		t.Fatal(err)
	}

	req := chatReq("second")
	req.SessionID = "conv-1"
	out, err := n.Normalize(req)
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"first", "first reply", "second"}
	if len(out.Desc.Messages) != len(want) {
		t.Fatalf("expected %d messages, got %+v", len(want), out.Desc.Messages)
	}
	for i, content := range want {
		if out.Desc.Messages[i].Content != content {
			t.Errorf("position %d: expected %q, got %q", i, content, out.Desc.Messages[i].Content)
		}
	}
	if len(out.NewMessages) != 1 || out.NewMessages[0].Content != "second" {
		t.Errorf("NewMessages must hold only this request's messages: %+v", out.NewMessages)
	}
}

func TestNormalizeUnknownSessionDegradesStateless(t *testing.T) {
	n, _ := newNormalizer()

	req := chatReq("hello")
	req.SessionID = "never-seen"
	out, err := n.Normalize(req)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Desc.Messages) != 1 {
		t.Errorf("expected no history, got %+v", out.Desc.Messages)
	}
	if out.SessionKey != "never-seen" {
		t.Errorf("session key must still be carried for persistence, got %q", out.SessionKey)
	}
}

func TestNormalizeDuplicateToolNames(t *testing.T) {
	n, _ := newNormalizer()

	req := chatReq("hi")
	req.Tools = []oai.Tool{{Type: "function", Function: oai.Function{Name: "a"}}}
	req.Functions = []oai.Function{{Name: "a"}}
	_, err := n.Normalize(req)
	if err == nil {
		t.Fatal("expected duplicate tool error")
	}
	if types.KindOf(err) != types.KindValidation {
		t.Errorf("expected validation_error, got %s", types.KindOf(err))
	}
}

func TestNormalizeToolEnablement(t *testing.T) {
	n, _ := newNormalizer()

	req := chatReq("hi")
	out, err := n.Normalize(req)
	if err != nil {
		t.Fatal(err)
	}
	if out.Desc.ToolsEnabled {
		t.Error("tools must be off without declarations or the flag")
	}

	req = chatReq("hi")
	req.Functions = []oai.Function{{Name: "lookup"}}
	out, err = n.Normalize(req)
	if err != nil {
		t.Fatal(err)
	}
	if !out.Desc.ToolsEnabled || len(out.Desc.Tools) != 1 {
		t.Errorf("declared tools must enable tool use: %+v", out.Desc)
	}
}

func TestNormalizeSessionKeySpellings(t *testing.T) {
	n, _ := newNormalizer()

	req := chatReq("hi")
	req.SessionKey = "alt-spelling"
	out, err := n.Normalize(req)
	if err != nil {
		t.Fatal(err)
	}
	if out.SessionKey != "alt-spelling" {
		t.Errorf("expected session_key accepted, got %q", out.SessionKey)
	}
}
