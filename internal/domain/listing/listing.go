package listing

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("listing: not found")

// Listing is the slice of a marketplace item the chat needs: who sells it.
type Listing struct {
	ID       string
	SellerID string
	Title    string
}

type Directory interface {
	Listing(ctx context.Context, id string) (Listing, error)
}
