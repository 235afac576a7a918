package marketapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"agromarket-notifier/internal/domain"
	"agromarket-notifier/pkg/logger"
)

// Client consumes the marketplace REST API: listings, bids and bid
// acceptance. All auction logic lives on the other side of it.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     logger.Logger
}

func NewClient(baseURL, apiKey string, timeout time.Duration, log logger.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

func (c *Client) ListOpenAuctions(ctx context.Context, sellerID string) ([]*domain.Auction, error) {
	path := fmt.Sprintf("/api/v1/auctions?status=open&seller=%s", url.QueryEscape(sellerID))

	var auctions []*domain.Auction
	if err := c.getJSON(ctx, path, &auctions); err != nil {
		return nil, err
	}
	return auctions, nil
}

func (c *Client) GetAuction(ctx context.Context, auctionID int64) (*domain.Auction, error) {
	var auction domain.Auction
	if err := c.getJSON(ctx, fmt.Sprintf("/api/v1/auctions/%d", auctionID), &auction); err != nil {
		return nil, err
	}
	return &auction, nil
}

func (c *Client) ListBids(ctx context.Context, auctionID int64) ([]*domain.Bid, error) {
	var bids []*domain.Bid
	if err := c.getJSON(ctx, fmt.Sprintf("/api/v1/auctions/%d/bids", auctionID), &bids); err != nil {
		return nil, err
	}
	return bids, nil
}

func (c *Client) AcceptBid(ctx context.Context, auctionID, bidID int64) error {
	body, err := json.Marshal(map[string]int64{"bid_id": bidID})
	if err != nil {
		return err
	}

	path := fmt.Sprintf("/api/v1/auctions/%d/accept", auctionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.statusError(path, resp)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.statusError(path, resp)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func (c *Client) statusError(path string, resp *http.Response) error {
	// Read a little of the body for the log, the caller only needs the code.
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	c.log.Error("Marketplace request failed",
		"path", path, "status", resp.StatusCode, "body", string(snippet))
	return fmt.Errorf("marketplace: %s returned %d", path, resp.StatusCode)
}
