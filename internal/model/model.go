package model

import "context"

// Generator is the text-generation abstraction used by the bot. The prompt
// goes in opaque and the reply comes back opaque; failures are ordinary
// errors the caller recovers from with fallback text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
