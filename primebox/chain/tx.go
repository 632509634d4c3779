package chain

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcutil/base58"
)

// ComputeBudgetProgramID is the priority-fee program. Its instructions are
// stripped before a transaction is inspected or counter-signed.
const ComputeBudgetProgramID = "ComputeBudget111111111111111111111111111111"

type Instruction struct {
	ProgramID string   `json:"program_id"`
	Accounts  []string `json:"accounts"`
	Data      []byte   `json:"data"`
}

// Transaction is the wire envelope submitted to the RPC node, carried
// around as base58-encoded JSON. Signatures map signer address to a
// base58 ed25519 signature over the message bytes.
type Transaction struct {
	RecentBlockhash string            `json:"recent_blockhash"`
	FeePayer        string            `json:"fee_payer"`
	Instructions    []Instruction     `json:"instructions"`
	Signatures      map[string]string `json:"signatures,omitempty"`
}

func DecodeTransaction(raw string) (*Transaction, error) {
	payload := base58.Decode(raw)
	if len(payload) == 0 {
		return nil, fmt.Errorf("transaction is not valid base58")
	}

	var tx Transaction
	if err := json.Unmarshal(payload, &tx); err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}
	if len(tx.Instructions) == 0 {
		return nil, fmt.Errorf("transaction has no instructions")
	}
	return &tx, nil
}

func (t *Transaction) Encode() (string, error) {
	payload, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("failed to encode transaction: %w", err)
	}
	return base58.Encode(payload), nil
}

// MessageBytes is the canonical signing payload: the transaction without
// its signatures.
func (t *Transaction) MessageBytes() ([]byte, error) {
	msg := Transaction{
		RecentBlockhash: t.RecentBlockhash,
		FeePayer:        t.FeePayer,
		Instructions:    t.Instructions,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to build message bytes: %w", err)
	}
	return payload, nil
}

// Sign appends a signature for the given signer address.
func (t *Transaction) Sign(signer string, key ed25519.PrivateKey) error {
	msg, err := t.MessageBytes()
	if err != nil {
		return err
	}
	if t.Signatures == nil {
		t.Signatures = make(map[string]string)
	}
	t.Signatures[signer] = base58.Encode(ed25519.Sign(key, msg))
	return nil
}

// VerifySignature checks the signer's signature against the message bytes.
func (t *Transaction) VerifySignature(signer string) (bool, error) {
	sig, ok := t.Signatures[signer]
	if !ok {
		return false, nil
	}
	msg, err := t.MessageBytes()
	if err != nil {
		return false, err
	}
	pub := base58.Decode(signer)
	if len(pub) != ed25519.PublicKeySize {
		return false, fmt.Errorf("signer %s is not a valid public key", signer)
	}
	return ed25519.Verify(ed25519.PublicKey(pub), msg, base58.Decode(sig)), nil
}

// StripComputeBudget drops priority-fee instructions so the remaining
// instruction list starts with the program call being validated.
func (t *Transaction) StripComputeBudget() {
	kept := t.Instructions[:0]
	for _, ix := range t.Instructions {
		if ix.ProgramID != ComputeBudgetProgramID {
			kept = append(kept, ix)
		}
	}
	t.Instructions = kept
}

// Discriminator is the 8-byte instruction tag derived from the
// instruction name, matching the on-chain program's dispatch table.
func Discriminator(name string) []byte {
	sum := sha256.Sum256([]byte("global:" + name))
	return sum[:8]
}

// DeriveAddress produces the deterministic program address for a seed
// list, rendered base58.
func DeriveAddress(programID string, seeds ...[]byte) string {
	h := sha256.New()
	for _, seed := range seeds {
		h.Write(seed)
	}
	h.Write([]byte(programID))
	return base58.Encode(h.Sum(nil))
}

// BidPayload is the decoded body of a bid/buy instruction.
type BidPayload struct {
	Action ActionKind
	Amount int64
}

// ActionKind is the purchase path byte carried at offset 8 of the
// instruction data, right after the discriminator.
type ActionKind byte

const (
	ActionBid ActionKind = iota
	ActionBuy
	ActionBidWithPass
	ActionBuyWithPass
)

func (a ActionKind) IsBid() bool {
	return a == ActionBid || a == ActionBidWithPass
}

func (a ActionKind) IsBuy() bool {
	return a == ActionBuy || a == ActionBuyWithPass
}

func (a ActionKind) UsesPass() bool {
	return a == ActionBidWithPass || a == ActionBuyWithPass
}

// ParseBidInstruction extracts the action byte and little-endian amount
// from a bid instruction's data.
func ParseBidInstruction(ix Instruction) (*BidPayload, error) {
	if len(ix.Data) < 17 {
		return nil, fmt.Errorf("bid instruction data too short: %d bytes", len(ix.Data))
	}
	action := ActionKind(ix.Data[8])
	if action > ActionBuyWithPass {
		return nil, fmt.Errorf("unknown action byte %d", ix.Data[8])
	}
	amount := binary.LittleEndian.Uint64(ix.Data[9:17])
	return &BidPayload{Action: action, Amount: int64(amount)}, nil
}

// EncodeBidInstruction builds bid instruction data for the program.
func EncodeBidInstruction(action ActionKind, amount int64) []byte {
	data := make([]byte, 17)
	copy(data, Discriminator("place_bid"))
	data[8] = byte(action)
	binary.LittleEndian.PutUint64(data[9:17], uint64(amount))
	return data
}

// AccountKey derives an ed25519 keypair's base58 address.
func AccountKey(key ed25519.PrivateKey) string {
	pub := key.Public().(ed25519.PublicKey)
	return base58.Encode(pub)
}

// KeyFromBase58 rebuilds an ed25519 private key from its base58 seed.
func KeyFromBase58(encoded string) (ed25519.PrivateKey, error) {
	seed := base58.Decode(encoded)
	if len(seed) == ed25519.SeedSize {
		return ed25519.NewKeyFromSeed(seed), nil
	}
	if len(seed) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(seed), nil
	}
	return nil, fmt.Errorf("invalid key length %d", len(seed))
}

func uint64LE(v uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)
	return buf
}
