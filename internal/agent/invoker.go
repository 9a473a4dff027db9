package agent

import (
	"context"

	"github.com/user/agentgate/internal/translate"
	"github.com/user/agentgate/internal/types"
	"github.com/user/agentgate/pkg/oai"
)

// Descriptor is the complete, runtime-facing form of one invocation:
// everything the runtime needs, nothing wire-specific left in it.
type Descriptor struct {
	Model        string                  `json:"model"`
	System       string                  `json:"system,omitempty"`
	Messages     []oai.Message           `json:"messages"`
	Tools        []translate.RuntimeTool `json:"tools,omitempty"`
	Stream       bool                    `json:"-"`
	ToolsEnabled bool                    `json:"-"`
	IncludeUsage bool                    `json:"-"`
	SessionKey   types.SessionKey        `json:"-"`
}

// Invoker starts one runtime invocation and exposes its output as an
// event stream. Implementations never retry; retry policy belongs to the
// caller.
type Invoker interface {
	Invoke(ctx context.Context, desc *Descriptor) (EventStream, error)
}
