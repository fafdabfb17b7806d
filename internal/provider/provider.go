// Package provider defines the uniform contract between the routing core and
// the caller-supplied model backends: the invocation operation, the
// request/response shapes, and the error taxonomy the fallback executor
// classifies.
package provider

import (
	"context"

	"github.com/natemoovs/zerochurn-ai/internal/catalog"
)

// Invoker performs one model invocation against an external backend. It is
// supplied by the host application; the routing core only decides which model
// to hand it. Failures should be classifiable, ideally as *Error.
type Invoker func(ctx context.Context, model catalog.Model, req Request) (*Response, error)

// Request carries one model invocation's inputs. The routing core never
// interprets Payload; it is hashed for caching and handed to the invoker.
type Request struct {
	TaskTag   string
	Prompt    string
	Payload   map[string]any
	MaxTokens int
}

// Response is the uniform result of a model invocation. Token counts feed
// cost estimation and are retained by the cache so hits can report the cost
// they avoided.
type Response struct {
	Content      string
	InputTokens  int
	OutputTokens int
}
