package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/withObsrvr/obsrvr-auction-snapshotter/internal/region"
)

const defaultUserAgent = "auction-snapshotter/1.0"

// HTTPConfig configures an HTTPClient.
type HTTPConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string

	// HTTPClient is the base transport. Defaults to a client with a 60s timeout.
	HTTPClient *http.Client
	UserAgent  string
}

// HTTPClient talks to the marketplace JSON API.
type HTTPClient struct {
	client    *http.Client
	userAgent string
}

// NewHTTPClient builds a client. When credentials are set, requests carry an
// OAuth2 bearer token obtained with the client credentials grant.
func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	base := cfg.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: 60 * time.Second}
	}

	client := base
	if cfg.ClientID != "" && cfg.ClientSecret != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		client = cc.Client(ctx)
		client.Timeout = base.Timeout
	}

	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	return &HTTPClient{client: client, userAgent: ua}
}

type realmIndexResponse struct {
	ConnectedRealms []RealmRef `json:"connected_realms"`
}

type auctionsResponse struct {
	Auctions []json.RawMessage `json:"auctions"`
}

// ListRealms implements Client.
func (c *HTTPClient) ListRealms(ctx context.Context, r region.Region) ([]RealmRef, error) {
	u := r.Host + "/data/wow/connected-realm/index?" + query(r).Encode()

	body, err := c.doGET(ctx, u)
	if err != nil {
		return nil, err
	}

	var resp realmIndexResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("realm index payload parse: %w", err)
	}
	return resp.ConnectedRealms, nil
}

// FetchListings implements Client.
func (c *HTTPClient) FetchListings(ctx context.Context, realmID int, r region.Region) ([]Listing, error) {
	u := r.Host + "/data/wow/connected-realm/" + strconv.Itoa(realmID) + "/auctions?" + query(r).Encode()

	body, err := c.doGET(ctx, u)
	if err != nil {
		return nil, err
	}

	var resp auctionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("auctions payload parse: %w", err)
	}
	return resp.Auctions, nil
}

func query(r region.Region) url.Values {
	q := url.Values{}
	q.Set("namespace", r.Namespace())
	q.Set("locale", r.Locale)
	return q
}

func (c *HTTPClient) doGET(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		remote := &RemoteError{StatusCode: resp.StatusCode}
		// Error bodies are best-effort; keep the status even if the body is not JSON.
		_ = json.Unmarshal(b, remote)
		remote.StatusCode = resp.StatusCode
		return nil, remote
	}
	return b, nil
}
