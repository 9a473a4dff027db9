// Package normalize validates inbound chat requests and builds the
// runtime-facing invocation descriptor: prior history merged with the new
// messages, a single system instruction, and the normalized tool
// declarations.
package normalize

import (
	"log/slog"

	"github.com/user/agentgate/internal/agent"
	"github.com/user/agentgate/internal/session"
	"github.com/user/agentgate/internal/translate"
	"github.com/user/agentgate/internal/types"
	"github.com/user/agentgate/pkg/oai"
)

// Normalized is the validated form of one request, ready for invocation.
type Normalized struct {
	Desc *agent.Descriptor
	// Translator maps runtime tool calls back to the caller's shape.
	Translator *translate.Translator
	// NewMessages are the caller's messages from this request only, the
	// part recorded on the turn after the exchange completes.
	NewMessages []oai.Message
	SessionKey  types.SessionKey
}

// Normalizer validates requests against the model allow-list and merges
// session history into descriptors.
type Normalizer struct {
	sessions *session.Manager
	models   map[string]bool
	logger   *slog.Logger
}

// New creates a Normalizer. The allowed list is the set of model IDs the
// façade accepts.
func New(sessions *session.Manager, allowed []string, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	models := make(map[string]bool, len(allowed))
	for _, m := range allowed {
		models[m] = true
	}
	return &Normalizer{sessions: sessions, models: models, logger: logger}
}

// Normalize validates the request and builds the invocation descriptor.
// An evicted or unknown session key degrades to stateless mode rather
// than failing; expiry between requests must look like a fresh
// conversation, not an error.
func (n *Normalizer) Normalize(req *oai.ChatCompletionRequest) (*Normalized, error) {
	if req.Model == "" {
		return nil, types.NewError(types.KindValidation, "model is required")
	}
	if !n.models[req.Model] {
		return nil, types.NewError(types.KindUnknownModel, "model %q is not available", req.Model)
	}
	if len(req.Messages) == 0 {
		return nil, types.NewError(types.KindEmptyRequest, "messages must not be empty")
	}

	decls, err := translate.Normalize(req.Tools, req.Functions)
	if err != nil {
		return nil, err
	}

	system, incoming := splitSystem(req.Messages)
	if len(incoming) == 0 && system == "" {
		return nil, types.NewError(types.KindEmptyRequest, "messages must not be empty")
	}

	tr := translate.NewTranslator(decls)
	desc := &agent.Descriptor{
		Model:        req.Model,
		System:       system,
		Stream:       req.Stream,
		ToolsEnabled: req.EnableTools || !tr.Empty(),
		IncludeUsage: req.IncludeUsage(),
		Tools:        tr.RuntimeTools(),
	}

	key := types.SessionKey(req.Session())
	if key != "" {
		desc.SessionKey = key
		history := n.sessions.History(key)
		if history == nil {
			n.logger.Debug("session unknown or expired, continuing stateless", "session", string(key))
		}
		for _, turn := range history {
			desc.Messages = append(desc.Messages, turn.Messages...)
			desc.Messages = append(desc.Messages, turn.Response)
		}
	}
	desc.Messages = append(desc.Messages, incoming...)

	return &Normalized{Desc: desc, Translator: tr, NewMessages: incoming, SessionKey: key}, nil
}

// splitSystem extracts the single system instruction. The first system
// message wins; any later ones are demoted to user-role content so their
// text still reaches the runtime in order.
func splitSystem(messages []oai.Message) (string, []oai.Message) {
	var system string
	out := make([]oai.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == "system" {
			if system == "" {
				system = m.Content
				continue
			}
			m.Role = "user"
		}
		out = append(out, m)
	}
	return system, out
}
