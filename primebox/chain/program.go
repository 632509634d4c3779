package chain

import (
	"context"
	"crypto/ed25519"
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/btcsuite/btcutil/base58"
)

// Seed prefixes for the program's derived addresses.
const (
	seedBox         = "prime-box"
	seedBoxTreasury = "prime-box-treasury"
	seedBoxWinner   = "prime-box-winner"
)

const boxAccountSize = 82

// BoxAccount is the on-chain state of a box, decoded from account data.
// Layout: initialized(1) resolved(1) executions(8, LE) current_bid(8, LE)
// bidder(32) winner(32).
type BoxAccount struct {
	Initialized bool
	Resolved    bool
	Executions  uint64
	CurrentBid  uint64
	Bidder      string
	Winner      string
}

func ParseBoxAccount(data []byte) (*BoxAccount, error) {
	if len(data) < boxAccountSize {
		return nil, fmt.Errorf("box account data too short: %d bytes", len(data))
	}
	acc := &BoxAccount{
		Initialized: data[0] == 1,
		Resolved:    data[1] == 1,
		Executions:  binary.LittleEndian.Uint64(data[2:10]),
		CurrentBid:  binary.LittleEndian.Uint64(data[10:18]),
	}
	acc.Bidder = encodePubkey(data[18:50])
	acc.Winner = encodePubkey(data[50:82])
	return acc, nil
}

func encodePubkey(raw []byte) string {
	empty := true
	for _, b := range raw {
		if b != 0 {
			empty = false
			break
		}
	}
	if empty {
		return ""
	}
	return base58.Encode(raw)
}

// InitBoxParams carries everything the init instruction needs.
type InitBoxParams struct {
	BoxID         int64
	Pool          int64
	Kind          int64
	BuyNowPrice   int64
	BidStartPrice int64
	BidIncrease   int64
	Duration      int64
	NftID         string
	NftURI        string
}

// ResolveBoxParams settles a round for its winner.
type ResolveBoxParams struct {
	BoxID  int64
	Winner string
	Amount int64
	NftID  string
	NftURI string
}

// RecoverBoxParams replays a settlement from a persisted failure record.
type RecoverBoxParams struct {
	BoxAddress  string
	BoxTreasury string
	Winner      string
	Amount      int64
	NftID       string
	NftURI      string
}

// Program binds the box program's instructions to the RPC pool and holds
// the co-signing authority key.
type Program struct {
	pool           *Pool
	programID      string
	authority      ed25519.PrivateKey
	authorityAddr  string
	passCollection string
}

func NewProgram(pool *Pool, programID, authorityKey, passCollection string) (*Program, error) {
	key, err := KeyFromBase58(authorityKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load authority key: %w", err)
	}
	return &Program{
		pool:           pool,
		programID:      programID,
		authority:      key,
		authorityAddr:  AccountKey(key),
		passCollection: passCollection,
	}, nil
}

func (p *Program) ID() string {
	return p.programID
}

func (p *Program) AuthorityAddress() string {
	return p.authorityAddr
}

func (p *Program) BoxAddress(boxID int64) string {
	return DeriveAddress(p.programID, []byte(seedBox), uint64LE(uint64(boxID)))
}

func (p *Program) TreasuryAddress(boxID int64) string {
	return DeriveAddress(p.programID, []byte(seedBoxTreasury), uint64LE(uint64(boxID)))
}

func (p *Program) WinnerProofAddress(nftID string) string {
	return DeriveAddress(p.programID, []byte(seedBoxWinner), []byte(nftID))
}

// ProofExists reports whether a winner proof account has been created
// for the item, meaning its round already settled.
func (p *Program) ProofExists(ctx context.Context, nftID string) (bool, error) {
	info, err := p.pool.Acquire().GetAccountInfo(ctx, p.WinnerProofAddress(nftID))
	if err != nil {
		return false, fmt.Errorf("failed to check winner proof: %w", err)
	}
	return info != nil, nil
}

// FetchBox returns nil when the box account does not exist on-chain yet.
func (p *Program) FetchBox(ctx context.Context, boxID int64) (*BoxAccount, error) {
	info, err := p.pool.Acquire().GetAccountInfo(ctx, p.BoxAddress(boxID))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch box account: %w", err)
	}
	if info == nil {
		return nil, nil
	}
	return ParseBoxAccount(info.Data)
}

func (p *Program) InitBox(ctx context.Context, params InitBoxParams) error {
	data := Discriminator("init_box")
	for _, v := range []int64{params.BoxID, params.Pool, params.Kind, params.BuyNowPrice, params.BidStartPrice, params.BidIncrease, params.Duration} {
		data = append(data, uint64LE(uint64(v))...)
	}
	data = append(data, []byte(params.NftID)...)

	ix := Instruction{
		ProgramID: p.programID,
		Accounts: []string{
			p.BoxAddress(params.BoxID),
			p.TreasuryAddress(params.BoxID),
			p.authorityAddr,
		},
		Data: data,
	}
	_, err := p.submit(ctx, ix)
	return err
}

func (p *Program) ResolveBox(ctx context.Context, params ResolveBoxParams) error {
	data := Discriminator("resolve_box")
	data = append(data, uint64LE(uint64(params.Amount))...)
	data = append(data, []byte(params.NftID)...)

	ix := Instruction{
		ProgramID: p.programID,
		Accounts: []string{
			p.BoxAddress(params.BoxID),
			p.TreasuryAddress(params.BoxID),
			p.WinnerProofAddress(params.NftID),
			params.Winner,
			p.authorityAddr,
		},
		Data: data,
	}
	_, err := p.submit(ctx, ix)
	return err
}

// RecoverBox replays a failed settlement. A proof account already on
// chain means an earlier attempt landed, so the record is done.
func (p *Program) RecoverBox(ctx context.Context, params RecoverBoxParams) error {
	exists, err := p.ProofExists(ctx, params.NftID)
	if err != nil {
		return err
	}
	if exists {
		slog.Info("Settlement already landed, skipping recovery",
			slog.String("type", "chain"),
			slog.String("nft_id", params.NftID))
		return nil
	}

	data := Discriminator("recover_box")
	data = append(data, uint64LE(uint64(params.Amount))...)
	data = append(data, []byte(params.NftID)...)

	ix := Instruction{
		ProgramID: p.programID,
		Accounts: []string{
			params.BoxAddress,
			params.BoxTreasury,
			p.WinnerProofAddress(params.NftID),
			params.Winner,
			p.authorityAddr,
		},
		Data: data,
	}
	_, err = p.submit(ctx, ix)
	return err
}

// HasPassToken reports whether the wallet holds a mint pass.
func (p *Program) HasPassToken(ctx context.Context, wallet string) (bool, error) {
	return p.pool.Acquire().OwnsAssetInCollection(ctx, wallet, p.passCollection)
}

// CounterSignAndSubmit adds the authority signature to a user-built
// transaction, submits it and waits for confirmation.
func (p *Program) CounterSignAndSubmit(ctx context.Context, tx *Transaction) (string, error) {
	if err := tx.Sign(p.authorityAddr, p.authority); err != nil {
		return "", err
	}
	encoded, err := tx.Encode()
	if err != nil {
		return "", err
	}

	client := p.pool.Acquire()
	sig, err := client.SendTransaction(ctx, encoded)
	if err != nil {
		return "", TranslateError(err)
	}
	if err := client.ConfirmTransaction(ctx, sig); err != nil {
		return "", TranslateError(err)
	}
	return sig, nil
}

// submit builds, signs and confirms an authority-only transaction.
func (p *Program) submit(ctx context.Context, ix Instruction) (string, error) {
	client := p.pool.Acquire()

	blockhash, err := client.GetLatestBlockhash(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to fetch blockhash: %w", err)
	}

	tx := &Transaction{
		RecentBlockhash: blockhash,
		FeePayer:        p.authorityAddr,
		Instructions:    []Instruction{ix},
	}
	if err := tx.Sign(p.authorityAddr, p.authority); err != nil {
		return "", err
	}
	encoded, err := tx.Encode()
	if err != nil {
		return "", err
	}

	sig, err := client.SendTransaction(ctx, encoded)
	if err != nil {
		return "", TranslateError(err)
	}
	if err := client.ConfirmTransaction(ctx, sig); err != nil {
		return "", TranslateError(err)
	}
	return sig, nil
}
