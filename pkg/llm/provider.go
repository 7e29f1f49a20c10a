// Package llm provides the provider abstraction used by the scenario agent.
//
// Example usage:
//
//	provider, err := openai.NewProvider(
//	    os.Getenv("OPENAI_API_KEY"),
//	    openai.WithModel("gpt-4o"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	reply, err := provider.Complete(ctx, []*llm.Message{
//	    llm.NewSystemMessage("You drive a web browser."),
//	    llm.NewUserMessage("Click the login button."),
//	})
package llm

import "context"

// Provider is implemented by LLM integrations.
//
// Providers handle API communication only. Prompt construction, action
// parsing, and transcript management belong to the agent layer, which keeps
// providers reusable and independently testable.
type Provider interface {
	// Complete sends the conversation to the model and returns the full
	// assistant response. Blocks until the response is complete or ctx is
	// done.
	Complete(ctx context.Context, messages []*Message) (*Message, error)

	// Model returns the model name requests are sent to.
	Model() string

	// ModelInfo returns metadata about the underlying model.
	ModelInfo() *ModelInfo
}

// ModelCloner is an optional interface for providers that support cheap
// per-call model overrides. The clone shares credentials and transport with
// the original but directs calls to the given model.
type ModelCloner interface {
	CloneWithModel(model string) Provider
}
