package handlers

import (
	"net/http"
	"strconv"

	"agromarket-notifier/internal/domain"
	"agromarket-notifier/internal/services"
	"agromarket-notifier/pkg/logger"

	"github.com/labstack/echo/v4"
)

// AuctionHandler serves auction views to the browser. Listings come from the
// invalidation-maintained cache; everything else is proxied straight to the
// marketplace.
type AuctionHandler struct {
	listings *services.ListingService
	market   domain.MarketClient
	sessions *services.SessionManager
	log      logger.Logger
}

type AcceptBidRequest struct {
	BidID int64 `json:"bid_id"`
}

func NewAuctionHandler(listings *services.ListingService, market domain.MarketClient,
	sessions *services.SessionManager, log logger.Logger) *AuctionHandler {
	return &AuctionHandler{
		listings: listings,
		market:   market,
		sessions: sessions,
		log:      log,
	}
}

func (h *AuctionHandler) ListOpenAuctions(c echo.Context) error {
	session, ok := h.sessions.Session(c.QueryParam("session_id"))
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "No active session"})
	}

	auctions, err := h.listings.OpenAuctions(c.Request().Context(), session.UserID)
	if err != nil {
		h.log.Error("Failed to list open auctions", "user_id", session.UserID, "error", err)
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "Marketplace unavailable"})
	}

	if auctions == nil {
		auctions = []*domain.Auction{}
	}
	return c.JSON(http.StatusOK, auctions)
}

func (h *AuctionHandler) GetAuction(c echo.Context) error {
	auctionID, err := parseID(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid auction id"})
	}

	auction, err := h.market.GetAuction(c.Request().Context(), auctionID)
	if err != nil {
		h.log.Error("Failed to get auction", "auction_id", auctionID, "error", err)
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "Marketplace unavailable"})
	}

	return c.JSON(http.StatusOK, auction)
}

func (h *AuctionHandler) ListBids(c echo.Context) error {
	auctionID, err := parseID(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid auction id"})
	}

	bids, err := h.market.ListBids(c.Request().Context(), auctionID)
	if err != nil {
		h.log.Error("Failed to list bids", "auction_id", auctionID, "error", err)
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "Marketplace unavailable"})
	}

	if bids == nil {
		bids = []*domain.Bid{}
	}
	return c.JSON(http.StatusOK, bids)
}

func (h *AuctionHandler) AcceptBid(c echo.Context) error {
	auctionID, err := parseID(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid auction id"})
	}

	var req AcceptBidRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if req.BidID == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "bid_id required"})
	}

	if err := h.market.AcceptBid(c.Request().Context(), auctionID, req.BidID); err != nil {
		h.log.Error("Failed to accept bid",
			"auction_id", auctionID, "bid_id", req.BidID, "error", err)
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "Failed to accept bid"})
	}

	h.log.Info("Bid accepted", "auction_id", auctionID, "bid_id", req.BidID)
	return c.JSON(http.StatusOK, map[string]string{"message": "Bid accepted"})
}

func parseID(raw string) (int64, error) {
	return strconv.ParseInt(raw, 10, 64)
}
