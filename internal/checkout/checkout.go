package checkout

import "context"

// Session is the slice of a payment checkout session the ledger cares
// about: the line items purchased and the price each was purchased under.
type Session struct {
	ID        string
	LineItems []LineItem
}

type LineItem struct {
	Quantity int64
	Price    Price
}

type Price struct {
	ID string
	// Metadata carries provider-side key/value pairs; the ledger reads the
	// "tokens" key as tokens-per-unit when configured to.
	Metadata map[string]string
}

// ObjectFetcher retrieves the external object a transaction correlates to.
// Implementations are provider-specific; tests inject stubs.
type ObjectFetcher interface {
	FetchCheckoutSession(ctx context.Context, externalID string) (*Session, error)
}

// FetcherFunc adapts a function to the ObjectFetcher interface.
type FetcherFunc func(ctx context.Context, externalID string) (*Session, error)

func (f FetcherFunc) FetchCheckoutSession(ctx context.Context, externalID string) (*Session, error) {
	return f(ctx, externalID)
}
