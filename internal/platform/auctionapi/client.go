// Package auctionapi is the REST client for the Collector's Den marketplace
// API: auth, bid placement, bid history, and catalog reads.
package auctionapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/collectorden/bidclient/internal/auth"
	"github.com/collectorden/bidclient/internal/domain"
)

// connectionIDHeader carries the bidding hub connection id on bid placement
// so the server can suppress echoing the event back to its own connection.
const connectionIDHeader = "X-Connection-Id"

// APIError is a non-2xx response from the marketplace API. Message is the
// server's own wording and is shown to users verbatim where appropriate
// (e.g. a rejected bid).
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("auctionapi: HTTP %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("auctionapi: HTTP %d", e.Status)
}

// Unwrap maps well-known statuses to domain sentinel errors so callers can
// use errors.Is without inspecting status codes.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.ErrUnauthorized
	case http.StatusTooManyRequests:
		return domain.ErrRateLimited
	}
	return nil
}

// Client is the marketplace REST client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     auth.TokenProvider
}

// New creates a marketplace API client.
//
// baseURL is the API root, e.g. "https://api.collectorden.com/api/v1".
// tokens supplies the bearer credential; it may return an empty string for
// anonymous reads.
func New(baseURL string, timeout time.Duration, tokens auth.TokenProvider) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		tokens: tokens,
	}
}

// ---------------------------------------------------------------------------
// Auth endpoints
// ---------------------------------------------------------------------------

// Login exchanges credentials for a token pair.
func (c *Client) Login(ctx context.Context, req LoginRequest) (domain.TokenResponse, error) {
	var out domain.TokenResponse
	if err := c.doJSON(ctx, http.MethodPost, "/auth/login", req, nil, &out); err != nil {
		return domain.TokenResponse{}, fmt.Errorf("auctionapi: login: %w", err)
	}
	return out, nil
}

// Register creates an account and returns its first token pair.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (domain.TokenResponse, error) {
	var out domain.TokenResponse
	if err := c.doJSON(ctx, http.MethodPost, "/auth/register", req, nil, &out); err != nil {
		return domain.TokenResponse{}, fmt.Errorf("auctionapi: register: %w", err)
	}
	return out, nil
}

// RefreshToken exchanges a refresh token for a new token pair.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (domain.TokenResponse, error) {
	body := map[string]string{"refreshToken": refreshToken}
	var out domain.TokenResponse
	if err := c.doJSON(ctx, http.MethodPost, "/auth/refresh-token", body, nil, &out); err != nil {
		return domain.TokenResponse{}, fmt.Errorf("auctionapi: refresh token: %w", err)
	}
	return out, nil
}

// Logout invalidates the current session server-side.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.doJSON(ctx, http.MethodPost, "/auth/logout", nil, nil, nil); err != nil {
		return fmt.Errorf("auctionapi: logout: %w", err)
	}
	return nil
}

// CurrentUser returns the authenticated user's identity.
func (c *Client) CurrentUser(ctx context.Context) (domain.UserProfile, error) {
	var out domain.UserProfile
	if err := c.doJSON(ctx, http.MethodGet, "/auth/me", nil, nil, &out); err != nil {
		return domain.UserProfile{}, fmt.Errorf("auctionapi: current user: %w", err)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Bidding endpoints
// ---------------------------------------------------------------------------

// PlaceBid submits a bid on an auction. connectionID, when non-empty, is the
// caller's bidding hub connection id; the server uses it to avoid echoing the
// resulting event to the connection that placed the bid, though clients must
// tolerate the echo regardless.
func (c *Client) PlaceBid(ctx context.Context, auctionID string, amount float64, connectionID string) (domain.BidResult, error) {
	var headers map[string]string
	if connectionID != "" {
		headers = map[string]string{connectionIDHeader: connectionID}
	}

	req := placeBidRequest{AuctionID: auctionID, Amount: amount}
	var out domain.BidResult
	if err := c.doJSON(ctx, http.MethodPost, "/bids", req, headers, &out); err != nil {
		return domain.BidResult{}, fmt.Errorf("auctionapi: place bid: %w", err)
	}
	return out, nil
}

// GetAuctionBids returns one page of an auction's bid history, newest first.
func (c *Client) GetAuctionBids(ctx context.Context, auctionID string, page, pageSize int) (domain.PagedBids, error) {
	path := fmt.Sprintf("/bids/auction/%s?page=%d&pageSize=%d", auctionID, page, pageSize)
	var out domain.PagedBids
	if err := c.doJSON(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return domain.PagedBids{}, fmt.Errorf("auctionapi: get auction bids %s: %w", auctionID, err)
	}
	return out, nil
}

// GetAuctionStats returns the aggregate bid statistics for an auction.
func (c *Client) GetAuctionStats(ctx context.Context, auctionID string) (domain.AuctionStats, error) {
	path := fmt.Sprintf("/bids/auction/%s/stats", auctionID)
	var out domain.AuctionStats
	if err := c.doJSON(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return domain.AuctionStats{}, fmt.Errorf("auctionapi: get auction stats %s: %w", auctionID, err)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Catalog endpoints
// ---------------------------------------------------------------------------

// GetAuction returns a single listing by id.
func (c *Client) GetAuction(ctx context.Context, auctionID string) (domain.Auction, error) {
	var out domain.Auction
	if err := c.doJSON(ctx, http.MethodGet, "/auctions/"+auctionID, nil, nil, &out); err != nil {
		return domain.Auction{}, fmt.Errorf("auctionapi: get auction %s: %w", auctionID, err)
	}
	return out, nil
}

// SearchAuctions runs a catalog search with the given filters.
func (c *Client) SearchAuctions(ctx context.Context, params domain.SearchParams) (domain.SearchResult, error) {
	var out domain.SearchResult
	path := "/auctions/search?" + searchQuery(params).Encode()
	if err := c.doJSON(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return domain.SearchResult{}, fmt.Errorf("auctionapi: search auctions: %w", err)
	}
	return out, nil
}

// GetUserProfile returns the public profile of a user.
func (c *Client) GetUserProfile(ctx context.Context, userID string) (domain.UserProfile, error) {
	var out domain.UserProfile
	if err := c.doJSON(ctx, http.MethodGet, "/users/"+userID, nil, nil, &out); err != nil {
		return domain.UserProfile{}, fmt.Errorf("auctionapi: get user %s: %w", userID, err)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Internal helpers
// ---------------------------------------------------------------------------

// searchQuery flattens SearchParams into URL query values, omitting zero
// fields.
func searchQuery(p domain.SearchParams) url.Values {
	q := url.Values{}
	if p.Query != "" {
		q.Set("q", p.Query)
	}
	if p.Category != "" {
		q.Set("category", string(p.Category))
	}
	if p.Condition != "" {
		q.Set("condition", string(p.Condition))
	}
	if p.MinPrice > 0 {
		q.Set("minPrice", strconv.FormatFloat(p.MinPrice, 'f', -1, 64))
	}
	if p.MaxPrice > 0 {
		q.Set("maxPrice", strconv.FormatFloat(p.MaxPrice, 'f', -1, 64))
	}
	if p.Status != "" {
		q.Set("status", string(p.Status))
	}
	if p.Sort != "" {
		q.Set("sort", p.Sort)
	}
	if p.Page > 0 {
		q.Set("page", strconv.Itoa(p.Page))
	}
	if p.PageSize > 0 {
		q.Set("pageSize", strconv.Itoa(p.PageSize))
	}
	return q
}

// doJSON builds, sends, and decodes a JSON request against the API. A nil
// out skips response decoding.
func (c *Client) doJSON(ctx context.Context, method, path string, body any, headers map[string]string, out any) error {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.tokens.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return err
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}

// checkHTTPStatus turns non-2xx responses into *APIError, preserving the
// server's error message when the body parses.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	apiErr := &APIError{Status: statusCode}
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		apiErr.Code = eb.Code
		apiErr.Message = eb.Message
	}
	if apiErr.Message == "" {
		apiErr.Message = string(body)
	}
	return apiErr
}
