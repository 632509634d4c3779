package boxes

import "errors"

var (
	ErrBidWindowClosed  = errors.New("bidding window is closed")
	ErrBoxNotRunning    = errors.New("box is not running")
	ErrWrongProgram     = errors.New("transaction does not target the box program")
	ErrWrongBox         = errors.New("transaction targets a different box")
	ErrAlreadySettled   = errors.New("item was already settled on-chain")
	ErrPoolNotPermitted = errors.New("wallet is not permitted in this pool")
	ErrPassRequired     = errors.New("a mint pass is required for this box")
	ErrBidTooLow        = errors.New("bid is below the minimum for this box")
	ErrBuyNowMismatch   = errors.New("buy-now amount does not match the box price")
	ErrBidsDisabled     = errors.New("this box does not accept bids")
	ErrBuyNowDisabled   = errors.New("this box does not offer buy-now")
	ErrNoItemsAvailable = errors.New("no items available for this pool")
)
