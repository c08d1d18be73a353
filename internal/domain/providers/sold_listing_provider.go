package providers

import "context"

// SoldListing is one sold/completed item as returned by the marketplace
// search. SoldDate is the raw date string when the API exposes one.
type SoldListing struct {
	Title    string
	Price    float64
	SoldDate string
}

// SoldListingProvider searches a marketplace for sold/completed listings
// matching a free-text query. Throttling is signaled with a typed
// errors.ErrorTypeThrottled error so callers can apply their own retry
// policy.
type SoldListingProvider interface {
	SearchSold(ctx context.Context, query string, limit int) ([]SoldListing, error)
}
