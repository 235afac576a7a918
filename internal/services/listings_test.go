package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"agromarket-notifier/internal/domain"
	"agromarket-notifier/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMarket struct {
	mu       sync.Mutex
	auctions []*domain.Auction
	err      error
	listings int
}

func (m *fakeMarket) ListOpenAuctions(ctx context.Context, sellerID string) ([]*domain.Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listings++
	if m.err != nil {
		return nil, m.err
	}
	return m.auctions, nil
}

func (m *fakeMarket) GetAuction(ctx context.Context, auctionID int64) (*domain.Auction, error) {
	return nil, errors.New("not implemented")
}

func (m *fakeMarket) ListBids(ctx context.Context, auctionID int64) ([]*domain.Bid, error) {
	return nil, errors.New("not implemented")
}

func (m *fakeMarket) AcceptBid(ctx context.Context, auctionID, bidID int64) error {
	return errors.New("not implemented")
}

func (m *fakeMarket) listCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listings
}

type memoryListingCache struct {
	mu       sync.Mutex
	listings map[string][]*domain.Auction
}

func newMemoryListingCache() *memoryListingCache {
	return &memoryListingCache{listings: make(map[string][]*domain.Auction)}
}

func (c *memoryListingCache) SetOpenAuctions(ctx context.Context, userID string, auctions []*domain.Auction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listings[userID] = auctions
	return nil
}

func (c *memoryListingCache) GetOpenAuctions(ctx context.Context, userID string) ([]*domain.Auction, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	auctions, ok := c.listings[userID]
	return auctions, ok, nil
}

func (c *memoryListingCache) Invalidate(ctx context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.listings, userID)
	return nil
}

func (c *memoryListingCache) cached(userID string) ([]*domain.Auction, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	auctions, ok := c.listings[userID]
	return auctions, ok
}

func TestListingService_SignalTriggersRefetch(t *testing.T) {
	market := &fakeMarket{auctions: []*domain.Auction{{ID: 1, SellerID: "farmer-1"}}}
	cache := newMemoryListingCache()
	bus := NewMemoryBus(logger.NewNop())

	listings := NewListingService(market, cache, bus, logger.NewNop())
	listings.Start(context.Background())
	defer listings.Stop()

	bus.Publish(domain.Signal{
		Topic:     domain.TopicAuctionList,
		AuctionID: 1,
		UserID:    "farmer-1",
	})

	require.Eventually(t, func() bool {
		cached, ok := cache.cached("farmer-1")
		return ok && len(cached) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, market.listCalls())
}

func TestListingService_FetchFailureInvalidatesCache(t *testing.T) {
	market := &fakeMarket{}
	cache := newMemoryListingCache()
	bus := NewMemoryBus(logger.NewNop())

	require.NoError(t, cache.SetOpenAuctions(context.Background(), "farmer-1",
		[]*domain.Auction{{ID: 1}}))

	listings := NewListingService(market, cache, bus, logger.NewNop())

	market.mu.Lock()
	market.err = errors.New("marketplace down")
	market.mu.Unlock()

	listings.Refresh(context.Background(), "farmer-1")

	_, ok := cache.cached("farmer-1")
	assert.False(t, ok, "stale snapshot must be dropped when refetch fails")
}

func TestListingService_OpenAuctionsServesCacheThenFallsBack(t *testing.T) {
	market := &fakeMarket{auctions: []*domain.Auction{{ID: 2, SellerID: "farmer-1"}}}
	cache := newMemoryListingCache()
	bus := NewMemoryBus(logger.NewNop())

	listings := NewListingService(market, cache, bus, logger.NewNop())

	// Miss: falls through to the marketplace and fills the cache.
	auctions, err := listings.OpenAuctions(context.Background(), "farmer-1")
	require.NoError(t, err)
	require.Len(t, auctions, 1)
	assert.Equal(t, 1, market.listCalls())

	// Hit: no second marketplace call.
	auctions, err = listings.OpenAuctions(context.Background(), "farmer-1")
	require.NoError(t, err)
	require.Len(t, auctions, 1)
	assert.Equal(t, 1, market.listCalls())
}

func TestListingService_OpenAuctionsSurfacesMarketError(t *testing.T) {
	market := &fakeMarket{err: errors.New("marketplace down")}
	cache := newMemoryListingCache()
	bus := NewMemoryBus(logger.NewNop())

	listings := NewListingService(market, cache, bus, logger.NewNop())

	_, err := listings.OpenAuctions(context.Background(), "farmer-1")
	assert.Error(t, err)
}
