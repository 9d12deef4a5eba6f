// Package marketplace reads realm indexes and auction listings from the remote marketplace API.
package marketplace

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/withObsrvr/obsrvr-auction-snapshotter/internal/region"
)

// Listing is one opaque auction record, passed through unmodified.
type Listing = json.RawMessage

// RealmRef is one entry of a region's realm index.
type RealmRef struct {
	Href string `json:"href"`
}

// Client is the read side of the marketplace.
type Client interface {
	// ListRealms returns the realm index of a region.
	ListRealms(ctx context.Context, r region.Region) ([]RealmRef, error)

	// FetchListings returns every current listing of one realm.
	FetchListings(ctx context.Context, realmID int, r region.Region) ([]Listing, error)
}

// RemoteError is a non-success response from the marketplace.
type RemoteError struct {
	StatusCode int
	Code       int    `json:"code"`
	Type       string `json:"type"`
	Detail     string `json:"detail"`
}

func (e *RemoteError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("marketplace: http %d: %s (%s)", e.StatusCode, e.Detail, e.Type)
	}
	return fmt.Sprintf("marketplace: http %d", e.StatusCode)
}
