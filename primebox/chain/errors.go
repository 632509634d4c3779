package chain

import (
	"errors"
	"strings"
)

var (
	ErrInsufficientFunds = errors.New("insufficient balance for transaction")
	ErrBidTooLow         = errors.New("bid is below the required amount")
	ErrBoxNotInitialized = errors.New("box is not initialized on-chain")
	ErrAlreadyResolved   = errors.New("box round is already resolved")
)

// Program error strings matched against RPC failure messages.
var errorTranslations = []struct {
	needle string
	err    error
}{
	{"NotEnoughSOL", ErrInsufficientFunds},
	{"insufficient lamports", ErrInsufficientFunds},
	{"BidTooLow", ErrBidTooLow},
	{"NotInitialized", ErrBoxNotInitialized},
	{"AlreadyResolved", ErrAlreadyResolved},
}

// TranslateError maps raw program/RPC failures to user-presentable
// errors, passing through anything unrecognized.
func TranslateError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	for _, t := range errorTranslations {
		if strings.Contains(msg, t.needle) {
			return t.err
		}
	}
	return err
}
