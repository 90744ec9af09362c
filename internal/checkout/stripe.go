package checkout

import (
	"context"

	stripe "github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/checkout/session"
)

// StripeFetcher retrieves checkout sessions from the Stripe API with line
// items expanded.
type StripeFetcher struct{}

// NewStripeFetcher sets the package-level API key and returns the fetcher.
func NewStripeFetcher(secretKey string) *StripeFetcher {
	stripe.Key = secretKey
	return &StripeFetcher{}
}

func (f *StripeFetcher) FetchCheckoutSession(ctx context.Context, externalID string) (*Session, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("line_items")

	s, err := session.Get(externalID, params)
	if err != nil {
		return nil, err
	}

	out := &Session{ID: s.ID}
	if s.LineItems != nil {
		for _, li := range s.LineItems.Data {
			item := LineItem{Quantity: li.Quantity}
			if li.Price != nil {
				item.Price = Price{ID: li.Price.ID, Metadata: li.Price.Metadata}
			}
			out.LineItems = append(out.LineItems, item)
		}
	}
	return out, nil
}
