package services

import (
	"context"

	"agromarket-notifier/internal/domain"
	"agromarket-notifier/internal/metrics"
	"agromarket-notifier/pkg/logger"
)

// ListingService keeps the cached "my open auctions" view consistent with
// server state without polling. Any auction-list signal triggers a full
// refetch of the seller's listing; the refetch is coarse by design, a stale
// bid count costs more than the extra request.
type ListingService struct {
	market domain.MarketClient
	cache  domain.ListingCache
	bus    domain.SignalBus
	log    logger.Logger

	cancel func()
}

func NewListingService(market domain.MarketClient, cache domain.ListingCache,
	bus domain.SignalBus, log logger.Logger) *ListingService {
	return &ListingService{
		market: market,
		cache:  cache,
		bus:    bus,
		log:    log,
	}
}

// Start subscribes to auction-list signals and refreshes in the background
// until Stop is called.
func (s *ListingService) Start(ctx context.Context) {
	ch, cancel := s.bus.Subscribe(domain.TopicAuctionList)
	s.cancel = cancel

	go func() {
		for signal := range ch {
			s.Refresh(ctx, signal.UserID)
		}
	}()

	s.log.Info("Listing service started")
}

func (s *ListingService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Refresh refetches the seller's open auctions into the cache. On fetch
// failure the cached snapshot is invalidated rather than left stale.
func (s *ListingService) Refresh(ctx context.Context, sellerID string) {
	metrics.ListingRefetches.Inc()

	auctions, err := s.market.ListOpenAuctions(ctx, sellerID)
	if err != nil {
		s.log.Error("Failed to refetch open auctions", "seller_id", sellerID, "error", err)
		if err := s.cache.Invalidate(ctx, sellerID); err != nil {
			s.log.Error("Failed to invalidate listing cache", "seller_id", sellerID, "error", err)
		}
		return
	}

	if err := s.cache.SetOpenAuctions(ctx, sellerID, auctions); err != nil {
		s.log.Error("Failed to cache open auctions", "seller_id", sellerID, "error", err)
	}
}

// OpenAuctions serves the cached listing, falling back to the marketplace on
// a miss.
func (s *ListingService) OpenAuctions(ctx context.Context, sellerID string) ([]*domain.Auction, error) {
	auctions, ok, err := s.cache.GetOpenAuctions(ctx, sellerID)
	if err != nil {
		s.log.Error("Listing cache read failed", "seller_id", sellerID, "error", err)
	}
	if ok {
		return auctions, nil
	}

	metrics.ListingRefetches.Inc()
	auctions, err = s.market.ListOpenAuctions(ctx, sellerID)
	if err != nil {
		return nil, err
	}

	if err := s.cache.SetOpenAuctions(ctx, sellerID, auctions); err != nil {
		s.log.Error("Failed to cache open auctions", "seller_id", sellerID, "error", err)
	}

	return auctions, nil
}
