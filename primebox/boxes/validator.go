package boxes

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/primebox/primebox/primebox/chain"
	"github.com/primebox/primebox/primebox/database/models"
	"github.com/primebox/primebox/primebox/pubsub"
)

// minRemainingSeconds is the cutoff under which no purchase is accepted,
// in either the active or cooldown phase.
const minRemainingSeconds = 2

// buyNowMinRemaining is the least time that must be left on an active
// round for an instant purchase to preempt it.
const buyNowMinRemaining = 5

// TxChain is what the validator needs from the program bindings.
type TxChain interface {
	ID() string
	BoxAddress(boxID int64) string
	ProofExists(ctx context.Context, nftID string) (bool, error)
	HasPassToken(ctx context.Context, wallet string) (bool, error)
	CounterSignAndSubmit(ctx context.Context, tx *chain.Transaction) (string, error)
}

// IdentityDirectory resolves wallets to known community members.
type IdentityDirectory interface {
	GetByWallet(ctx context.Context, wallet string) (*models.User, error)
}

// BidContext is the round snapshot a bid is validated against. The
// worker owns it; the validator only reads.
type BidContext struct {
	Box        *models.BoxConfig
	Nft        *models.Nft
	Mode       Mode
	Phase      models.BoxState
	Remaining  int64
	CurrentBid int64
	History    []models.BidEntry
}

// BidResult is the outcome of an accepted purchase transaction.
type BidResult struct {
	Signature string
	Amount    int64
	Bidder    string
	Username  string
	Action    chain.ActionKind
	// PreemptedAuthority is the prior bid-proof holder whose funds are
	// returned by this transaction, empty when none.
	PreemptedAuthority string
}

// Validator checks, counter-signs and submits user purchase transactions.
type Validator struct {
	chain   TxChain
	users   IdentityDirectory
	webhook *pubsub.WebhookEmitter
}

func NewValidator(txChain TxChain, users IdentityDirectory, webhook *pubsub.WebhookEmitter) *Validator {
	return &Validator{chain: txChain, users: users, webhook: webhook}
}

// Validate runs the full acceptance pipeline for a raw transaction:
// decode, strip priority-fee instructions, target and payload checks,
// settlement and pool gating, timing, then counter-sign and submit.
func (v *Validator) Validate(ctx context.Context, rawTx string, bctx *BidContext) (*BidResult, error) {
	tx, err := chain.DecodeTransaction(rawTx)
	if err != nil {
		return nil, err
	}
	tx.StripComputeBudget()
	if len(tx.Instructions) == 0 {
		return nil, ErrWrongProgram
	}

	ix := tx.Instructions[0]
	if ix.ProgramID != v.chain.ID() {
		return nil, ErrWrongProgram
	}
	if len(ix.Accounts) < 2 {
		return nil, fmt.Errorf("bid instruction is missing accounts")
	}
	if ix.Accounts[0] != v.chain.BoxAddress(bctx.Box.BoxID) {
		return nil, ErrWrongBox
	}
	bidder := ix.Accounts[1]

	payload, err := chain.ParseBidInstruction(ix)
	if err != nil {
		return nil, err
	}

	settled, err := v.chain.ProofExists(ctx, bctx.Nft.NftID)
	if err != nil {
		return nil, err
	}
	if settled {
		return nil, ErrAlreadySettled
	}

	user, err := v.gate(ctx, bidder, payload.Action, bctx.Box.BoxPool)
	if err != nil {
		return nil, err
	}

	if bctx.Remaining <= minRemainingSeconds {
		return nil, ErrBidWindowClosed
	}

	if err := v.checkAmount(payload, bctx); err != nil {
		return nil, err
	}

	sig, err := v.chain.CounterSignAndSubmit(ctx, tx)
	if err != nil {
		return nil, err
	}

	result := &BidResult{
		Signature:          sig,
		Amount:             payload.Amount,
		Bidder:             bidder,
		Username:           displayName(user, bidder),
		Action:             payload.Action,
		PreemptedAuthority: preemptedAuthority(ix, bidder),
	}

	v.emitWebhook(result, bctx)

	slog.Info("Purchase transaction accepted",
		slog.String("type", "box"),
		slog.String("box_id", fmt.Sprintf("%d", bctx.Box.BoxID)),
		slog.String("bidder", bidder),
		slog.Int64("amount", payload.Amount),
		slog.String("signature", sig))

	return result, nil
}

// gate enforces pass and pool access rules for the bidder.
func (v *Validator) gate(ctx context.Context, bidder string, action chain.ActionKind, pool models.BoxPool) (*models.User, error) {
	if action.UsesPass() {
		if pool != models.PoolPreSale {
			return nil, ErrPassRequired
		}
		holds, err := v.chain.HasPassToken(ctx, bidder)
		if err != nil {
			return nil, err
		}
		if !holds {
			return nil, ErrPassRequired
		}
		return v.users.GetByWallet(ctx, bidder)
	}

	user, err := v.users.GetByWallet(ctx, bidder)
	if err != nil {
		return nil, err
	}
	permitted := models.PoolPublic
	if user != nil {
		permitted = user.PermittedPool()
	}
	if permitted > pool {
		return nil, ErrPoolNotPermitted
	}
	return user, nil
}

func (v *Validator) checkAmount(payload *chain.BidPayload, bctx *BidContext) error {
	switch {
	case payload.Action.IsBid():
		if !bctx.Mode.AllowsBid() {
			return ErrBidsDisabled
		}
		if payload.Amount < bctx.Mode.MinNextBid(bctx.CurrentBid) {
			return ErrBidTooLow
		}
	case payload.Action.IsBuy():
		if !bctx.Mode.AllowsBuyNow() {
			return ErrBuyNowDisabled
		}
		if payload.Amount != bctx.Mode.Price() {
			return ErrBuyNowMismatch
		}
		// Instant purchase may only preempt an active round with enough
		// time left to settle cleanly.
		if bctx.Phase != models.BoxStateActive || bctx.Remaining < buyNowMinRemaining {
			return ErrBidWindowClosed
		}
	}
	return nil
}

// preemptedAuthority pulls the prior bid-proof holder from the optional
// sixth account, when it differs from the new bidder.
func preemptedAuthority(ix chain.Instruction, bidder string) string {
	if len(ix.Accounts) <= 5 {
		return ""
	}
	prior := ix.Accounts[5]
	if prior == "" || prior == bidder {
		return ""
	}
	return prior
}

func displayName(user *models.User, wallet string) string {
	if user != nil && user.Username != "" {
		return user.Username
	}
	if len(wallet) > 8 {
		return wallet[:4] + ".." + wallet[len(wallet)-4:]
	}
	return wallet
}

func (v *Validator) emitWebhook(result *BidResult, bctx *BidContext) {
	event := "bid"
	if result.Action.IsBuy() {
		event = "mint"
	}
	v.webhook.Emit(map[string]interface{}{
		"event":     event,
		"box_id":    bctx.Box.BoxID,
		"nft_id":    bctx.Nft.NftID,
		"nft_name":  bctx.Nft.NftName,
		"wallet":    result.Bidder,
		"username":  result.Username,
		"amount":    result.Amount,
		"bids":      len(bctx.History) + 1,
		"timestamp": time.Now().Unix(),
	})
}
