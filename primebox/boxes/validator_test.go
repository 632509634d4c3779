package boxes

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/primebox/primebox/primebox/chain"
	"github.com/primebox/primebox/primebox/database/models"
)

type fakeTxChain struct {
	programID  string
	boxAddr    string
	settled    bool
	hasPass    bool
	submitErr  error
	submitted  int
	lastSigned *chain.Transaction
}

func (c *fakeTxChain) ID() string                    { return c.programID }
func (c *fakeTxChain) BoxAddress(boxID int64) string { return c.boxAddr }

func (c *fakeTxChain) ProofExists(_ context.Context, _ string) (bool, error) {
	return c.settled, nil
}

func (c *fakeTxChain) HasPassToken(_ context.Context, _ string) (bool, error) {
	return c.hasPass, nil
}

func (c *fakeTxChain) CounterSignAndSubmit(_ context.Context, tx *chain.Transaction) (string, error) {
	if c.submitErr != nil {
		return "", c.submitErr
	}
	c.submitted++
	c.lastSigned = tx
	return "sig-1", nil
}

type fakeDirectory struct {
	users map[string]*models.User
}

func (d *fakeDirectory) GetByWallet(_ context.Context, wallet string) (*models.User, error) {
	return d.users[wallet], nil
}

type bidTxOpts struct {
	programID string
	boxAddr   string
	bidder    string
	action    chain.ActionKind
	amount    int64
	prior     string
	budget    bool
}

func bidTx(t *testing.T, o bidTxOpts) string {
	t.Helper()
	accounts := []string{o.boxAddr, o.bidder, "treasury", "system", "rent"}
	if o.prior != "" {
		accounts = append(accounts, o.prior)
	}
	tx := &chain.Transaction{
		RecentBlockhash: "hash",
		FeePayer:        o.bidder,
		Instructions: []chain.Instruction{{
			ProgramID: o.programID,
			Accounts:  accounts,
			Data:      chain.EncodeBidInstruction(o.action, o.amount),
		}},
	}
	if o.budget {
		tx.Instructions = append([]chain.Instruction{{
			ProgramID: chain.ComputeBudgetProgramID,
			Data:      []byte{2, 0, 0, 0},
		}}, tx.Instructions...)
	}
	raw, err := tx.Encode()
	require.NoError(t, err)
	return raw
}

func bidCtx(pool models.BoxPool, mode Mode) *BidContext {
	return &BidContext{
		Box:       &models.BoxConfig{BoxID: 7, BoxPool: pool},
		Nft:       &models.Nft{NftID: "nft-1", NftName: "Item"},
		Mode:      mode,
		Phase:     models.BoxStateActive,
		Remaining: 30,
	}
}

func newTestValidator(c *fakeTxChain, users map[string]*models.User) *Validator {
	return NewValidator(c, &fakeDirectory{users: users}, nil)
}

func TestValidateAcceptsBid(t *testing.T) {
	c := &fakeTxChain{programID: "prog", boxAddr: "box-addr"}
	v := newTestValidator(c, nil)

	mode, _ := NewMode(models.KindBid, 0, 100, 10)
	raw := bidTx(t, bidTxOpts{programID: "prog", boxAddr: "box-addr", bidder: "wallet-abcdefgh", action: chain.ActionBid, amount: 100})

	res, err := v.Validate(context.Background(), raw, bidCtx(models.PoolPublic, mode))
	require.NoError(t, err)
	assert.Equal(t, "sig-1", res.Signature)
	assert.Equal(t, int64(100), res.Amount)
	assert.Equal(t, "wallet-abcdefgh", res.Bidder)
	assert.Equal(t, "wall..efgh", res.Username)
	assert.Empty(t, res.PreemptedAuthority)
	assert.Equal(t, 1, c.submitted)
}

func TestValidateStripsComputeBudget(t *testing.T) {
	c := &fakeTxChain{programID: "prog", boxAddr: "box-addr"}
	v := newTestValidator(c, nil)

	mode, _ := NewMode(models.KindBid, 0, 100, 10)
	raw := bidTx(t, bidTxOpts{programID: "prog", boxAddr: "box-addr", bidder: "w1", action: chain.ActionBid, amount: 100, budget: true})

	_, err := v.Validate(context.Background(), raw, bidCtx(models.PoolPublic, mode))
	require.NoError(t, err)
	require.NotNil(t, c.lastSigned)
	for _, ix := range c.lastSigned.Instructions {
		assert.NotEqual(t, chain.ComputeBudgetProgramID, ix.ProgramID)
	}
}

func TestValidateRejectsWrongProgram(t *testing.T) {
	c := &fakeTxChain{programID: "prog", boxAddr: "box-addr"}
	v := newTestValidator(c, nil)

	mode, _ := NewMode(models.KindBid, 0, 100, 10)
	raw := bidTx(t, bidTxOpts{programID: "other-prog", boxAddr: "box-addr", bidder: "w1", action: chain.ActionBid, amount: 100})

	_, err := v.Validate(context.Background(), raw, bidCtx(models.PoolPublic, mode))
	assert.ErrorIs(t, err, ErrWrongProgram)
}

func TestValidateRejectsWrongBox(t *testing.T) {
	c := &fakeTxChain{programID: "prog", boxAddr: "box-addr"}
	v := newTestValidator(c, nil)

	mode, _ := NewMode(models.KindBid, 0, 100, 10)
	raw := bidTx(t, bidTxOpts{programID: "prog", boxAddr: "other-box", bidder: "w1", action: chain.ActionBid, amount: 100})

	_, err := v.Validate(context.Background(), raw, bidCtx(models.PoolPublic, mode))
	assert.ErrorIs(t, err, ErrWrongBox)
}

func TestValidateRejectsSettledItem(t *testing.T) {
	c := &fakeTxChain{programID: "prog", boxAddr: "box-addr", settled: true}
	v := newTestValidator(c, nil)

	mode, _ := NewMode(models.KindBid, 0, 100, 10)
	raw := bidTx(t, bidTxOpts{programID: "prog", boxAddr: "box-addr", bidder: "w1", action: chain.ActionBid, amount: 100})

	_, err := v.Validate(context.Background(), raw, bidCtx(models.PoolPublic, mode))
	assert.ErrorIs(t, err, ErrAlreadySettled)
}

func TestValidatePoolGating(t *testing.T) {
	og := &models.User{ID: "u1", Username: "og-user", Roles: []models.UserRole{models.RoleOG}}
	c := &fakeTxChain{programID: "prog", boxAddr: "box-addr"}
	v := newTestValidator(c, map[string]*models.User{"og-wallet": og})

	mode, _ := NewMode(models.KindBid, 0, 100, 10)

	// An OG wallet may bid on OG and public boxes but not presale.
	raw := bidTx(t, bidTxOpts{programID: "prog", boxAddr: "box-addr", bidder: "og-wallet", action: chain.ActionBid, amount: 100})
	res, err := v.Validate(context.Background(), raw, bidCtx(models.PoolOG, mode))
	require.NoError(t, err)
	assert.Equal(t, "og-user", res.Username)

	_, err = v.Validate(context.Background(), raw, bidCtx(models.PoolPreSale, mode))
	assert.ErrorIs(t, err, ErrPoolNotPermitted)

	// Unknown wallets only qualify for public boxes.
	raw = bidTx(t, bidTxOpts{programID: "prog", boxAddr: "box-addr", bidder: "rando", action: chain.ActionBid, amount: 100})
	_, err = v.Validate(context.Background(), raw, bidCtx(models.PoolPrimeList, mode))
	assert.ErrorIs(t, err, ErrPoolNotPermitted)
	_, err = v.Validate(context.Background(), raw, bidCtx(models.PoolPublic, mode))
	assert.NoError(t, err)
}

func TestValidatePassGating(t *testing.T) {
	mode, _ := NewMode(models.KindBid, 0, 100, 10)

	// Pass actions only make sense on presale boxes.
	c := &fakeTxChain{programID: "prog", boxAddr: "box-addr", hasPass: true}
	v := newTestValidator(c, nil)
	raw := bidTx(t, bidTxOpts{programID: "prog", boxAddr: "box-addr", bidder: "w1", action: chain.ActionBidWithPass, amount: 100})

	_, err := v.Validate(context.Background(), raw, bidCtx(models.PoolPublic, mode))
	assert.ErrorIs(t, err, ErrPassRequired)

	_, err = v.Validate(context.Background(), raw, bidCtx(models.PoolPreSale, mode))
	assert.NoError(t, err)

	// Without the token the presale door stays shut.
	c.hasPass = false
	_, err = v.Validate(context.Background(), raw, bidCtx(models.PoolPreSale, mode))
	assert.ErrorIs(t, err, ErrPassRequired)
}

func TestValidateBidAmounts(t *testing.T) {
	c := &fakeTxChain{programID: "prog", boxAddr: "box-addr"}
	v := newTestValidator(c, nil)
	mode, _ := NewMode(models.KindBid, 0, 100, 10)

	raw := bidTx(t, bidTxOpts{programID: "prog", boxAddr: "box-addr", bidder: "w1", action: chain.ActionBid, amount: 99})
	_, err := v.Validate(context.Background(), raw, bidCtx(models.PoolPublic, mode))
	assert.ErrorIs(t, err, ErrBidTooLow)

	// Raising over an existing high bid needs current + increase.
	bctx := bidCtx(models.PoolPublic, mode)
	bctx.CurrentBid = 200
	raw = bidTx(t, bidTxOpts{programID: "prog", boxAddr: "box-addr", bidder: "w1", action: chain.ActionBid, amount: 205})
	_, err = v.Validate(context.Background(), raw, bctx)
	assert.ErrorIs(t, err, ErrBidTooLow)

	raw = bidTx(t, bidTxOpts{programID: "prog", boxAddr: "box-addr", bidder: "w1", action: chain.ActionBid, amount: 210})
	_, err = v.Validate(context.Background(), raw, bctx)
	assert.NoError(t, err)
}

func TestValidateBidOnBuyNowOnlyBox(t *testing.T) {
	c := &fakeTxChain{programID: "prog", boxAddr: "box-addr"}
	v := newTestValidator(c, nil)
	mode, _ := NewMode(models.KindBuyNow, 500, 0, 0)

	raw := bidTx(t, bidTxOpts{programID: "prog", boxAddr: "box-addr", bidder: "w1", action: chain.ActionBid, amount: 500})
	_, err := v.Validate(context.Background(), raw, bidCtx(models.PoolPublic, mode))
	assert.ErrorIs(t, err, ErrBidsDisabled)
}

func TestValidateBuyNow(t *testing.T) {
	c := &fakeTxChain{programID: "prog", boxAddr: "box-addr"}
	v := newTestValidator(c, nil)
	mode, _ := NewMode(models.KindBidBuyNow, 1000, 100, 10)

	// Exact price required.
	raw := bidTx(t, bidTxOpts{programID: "prog", boxAddr: "box-addr", bidder: "w1", action: chain.ActionBuy, amount: 999})
	_, err := v.Validate(context.Background(), raw, bidCtx(models.PoolPublic, mode))
	assert.ErrorIs(t, err, ErrBuyNowMismatch)

	raw = bidTx(t, bidTxOpts{programID: "prog", boxAddr: "box-addr", bidder: "w1", action: chain.ActionBuy, amount: 1000})
	_, err = v.Validate(context.Background(), raw, bidCtx(models.PoolPublic, mode))
	assert.NoError(t, err)

	// Buy-now cannot land in cooldown.
	bctx := bidCtx(models.PoolPublic, mode)
	bctx.Phase = models.BoxStateCooldown
	_, err = v.Validate(context.Background(), raw, bctx)
	assert.ErrorIs(t, err, ErrBidWindowClosed)

	// Nor in the last seconds of an active round.
	bctx = bidCtx(models.PoolPublic, mode)
	bctx.Remaining = 4
	_, err = v.Validate(context.Background(), raw, bctx)
	assert.ErrorIs(t, err, ErrBidWindowClosed)
}

func TestValidateTimingBoundary(t *testing.T) {
	c := &fakeTxChain{programID: "prog", boxAddr: "box-addr"}
	v := newTestValidator(c, nil)
	mode, _ := NewMode(models.KindBid, 0, 100, 10)
	raw := bidTx(t, bidTxOpts{programID: "prog", boxAddr: "box-addr", bidder: "w1", action: chain.ActionBid, amount: 100})

	bctx := bidCtx(models.PoolPublic, mode)
	bctx.Remaining = 2
	_, err := v.Validate(context.Background(), raw, bctx)
	assert.ErrorIs(t, err, ErrBidWindowClosed)

	bctx.Remaining = 3
	_, err = v.Validate(context.Background(), raw, bctx)
	assert.NoError(t, err)

	// A late bid is reported as late even when its amount is also too
	// low; the closed window is the verdict that matters.
	low := bidTx(t, bidTxOpts{programID: "prog", boxAddr: "box-addr", bidder: "w1", action: chain.ActionBid, amount: 1})
	bctx = bidCtx(models.PoolPublic, mode)
	bctx.Remaining = 2
	_, err = v.Validate(context.Background(), low, bctx)
	assert.ErrorIs(t, err, ErrBidWindowClosed)
}

func TestValidatePreemptedAuthority(t *testing.T) {
	c := &fakeTxChain{programID: "prog", boxAddr: "box-addr"}
	v := newTestValidator(c, nil)
	mode, _ := NewMode(models.KindBid, 0, 100, 10)

	raw := bidTx(t, bidTxOpts{programID: "prog", boxAddr: "box-addr", bidder: "w2", action: chain.ActionBid, amount: 110, prior: "w1"})
	res, err := v.Validate(context.Background(), raw, bidCtx(models.PoolPublic, mode))
	require.NoError(t, err)
	assert.Equal(t, "w1", res.PreemptedAuthority)

	// Outbidding yourself refunds nobody.
	raw = bidTx(t, bidTxOpts{programID: "prog", boxAddr: "box-addr", bidder: "w1", action: chain.ActionBid, amount: 110, prior: "w1"})
	res, err = v.Validate(context.Background(), raw, bidCtx(models.PoolPublic, mode))
	require.NoError(t, err)
	assert.Empty(t, res.PreemptedAuthority)
}

func TestValidateSubmitFailurePropagates(t *testing.T) {
	submitErr := errors.New("rpc unavailable")
	c := &fakeTxChain{programID: "prog", boxAddr: "box-addr", submitErr: submitErr}
	v := newTestValidator(c, nil)
	mode, _ := NewMode(models.KindBid, 0, 100, 10)

	raw := bidTx(t, bidTxOpts{programID: "prog", boxAddr: "box-addr", bidder: "w1", action: chain.ActionBid, amount: 100})
	_, err := v.Validate(context.Background(), raw, bidCtx(models.PoolPublic, mode))
	assert.ErrorIs(t, err, submitErr)
}
