package models

import "context"

// CompletionClient is the language-model collaborator: it takes a prompt and
// returns the raw completion text.
type CompletionClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// BrokerSink accepts validated orders and reports their outcome
type BrokerSink interface {
	PlaceOrder(ctx context.Context, order *TradeOrder) (*TradeOutcome, error)
}

// MessageSource delivers inbound channel messages
type MessageSource interface {
	Messages(ctx context.Context) (<-chan Message, error)
}
