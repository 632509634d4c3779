package boxes

import (
	"fmt"

	"github.com/primebox/primebox/primebox/database/models"
)

// Mode is the purchase configuration of a box. It is a closed set of
// variants, each carrying exactly the prices its paths need, so an
// invalid combination cannot be constructed.
type Mode interface {
	Kind() models.BoxKind
	AllowsBid() bool
	AllowsBuyNow() bool
	// MinNextBid is the lowest acceptable bid given the current high bid.
	MinNextBid(current int64) int64
	// Price is the buy-now price, zero when buy-now is not offered.
	Price() int64
}

// BidMode accepts only ascending bids.
type BidMode struct {
	StartPrice int64
	Increase   int64
}

func (BidMode) Kind() models.BoxKind { return models.KindBid }
func (BidMode) AllowsBid() bool      { return true }
func (BidMode) AllowsBuyNow() bool   { return false }
func (BidMode) Price() int64         { return 0 }

func (m BidMode) MinNextBid(current int64) int64 {
	if current == 0 {
		return m.StartPrice
	}
	return current + m.Increase
}

// BuyNowMode sells at a fixed price only.
type BuyNowMode struct {
	FixedPrice int64
}

func (BuyNowMode) Kind() models.BoxKind    { return models.KindBuyNow }
func (BuyNowMode) AllowsBid() bool         { return false }
func (BuyNowMode) AllowsBuyNow() bool      { return true }
func (m BuyNowMode) Price() int64          { return m.FixedPrice }
func (BuyNowMode) MinNextBid(int64) int64  { return 0 }

// BidBuyNowMode accepts bids and an instant purchase.
type BidBuyNowMode struct {
	StartPrice int64
	Increase   int64
	FixedPrice int64
}

func (BidBuyNowMode) Kind() models.BoxKind { return models.KindBidBuyNow }
func (BidBuyNowMode) AllowsBid() bool      { return true }
func (BidBuyNowMode) AllowsBuyNow() bool   { return true }
func (m BidBuyNowMode) Price() int64       { return m.FixedPrice }

func (m BidBuyNowMode) MinNextBid(current int64) int64 {
	if current == 0 {
		return m.StartPrice
	}
	return current + m.Increase
}

// NewMode validates the price matrix for a kind and builds its variant.
// Every kind requires exactly the prices its paths use.
func NewMode(kind models.BoxKind, buyNowPrice, bidStartPrice, bidIncrease int64) (Mode, error) {
	switch kind {
	case models.KindBid:
		if bidStartPrice <= 0 || bidIncrease <= 0 {
			return nil, fmt.Errorf("bid box requires a start price and increase")
		}
		return BidMode{StartPrice: bidStartPrice, Increase: bidIncrease}, nil
	case models.KindBuyNow:
		if buyNowPrice <= 0 {
			return nil, fmt.Errorf("buy-now box requires a price")
		}
		return BuyNowMode{FixedPrice: buyNowPrice}, nil
	case models.KindBidBuyNow:
		if bidStartPrice <= 0 || bidIncrease <= 0 || buyNowPrice <= 0 {
			return nil, fmt.Errorf("bid+buy-now box requires all three prices")
		}
		if buyNowPrice <= bidStartPrice {
			return nil, fmt.Errorf("buy-now price must exceed the bid start price")
		}
		return BidBuyNowMode{StartPrice: bidStartPrice, Increase: bidIncrease, FixedPrice: buyNowPrice}, nil
	default:
		return nil, fmt.Errorf("unknown box kind %d", kind)
	}
}

// ModeFor rebuilds the variant from a persisted box row.
func ModeFor(box *models.BoxConfig) (Mode, error) {
	return NewMode(box.BoxKind, box.BuyNowPrice, box.BidStartPrice, box.BidIncrease)
}
