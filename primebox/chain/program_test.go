package chain

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"sync"
	"testing"

	"github.com/btcsuite/btcutil/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rpcCounter tallies method calls from the test server's handler goroutines.
type rpcCounter struct {
	mu    sync.Mutex
	calls map[string]int
}

func newRPCCounter() *rpcCounter {
	return &rpcCounter{calls: make(map[string]int)}
}

func (c *rpcCounter) inc(method string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[method]++
}

func (c *rpcCounter) count(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[method]
}

// testProgram builds a Program against the given RPC endpoint with a
// fresh authority key.
func testProgram(t *testing.T, endpoint string) *Program {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	pool, err := NewPool([]string{endpoint})
	require.NoError(t, err)

	program, err := NewProgram(pool, "prog-id", base58.Encode(priv.Seed()), "pass-coll")
	require.NoError(t, err)
	return program
}

func TestRecoverBoxSkipsWhenProofAlreadyLanded(t *testing.T) {
	counter := newRPCCounter()
	srv := rpcServer(t, func(method string, _ []json.RawMessage) (interface{}, *rpcError) {
		counter.inc(method)
		switch method {
		case "getAccountInfo":
			// The winner proof account exists: an earlier attempt landed.
			return map[string]interface{}{
				"value": map[string]interface{}{"owner": "prog-id", "lamports": 1, "data": ""},
			}, nil
		default:
			return nil, &rpcError{Code: -32601, Message: "unexpected method " + method}
		}
	})
	defer srv.Close()

	program := testProgram(t, srv.URL)
	err := program.RecoverBox(context.Background(), RecoverBoxParams{
		BoxAddress:  "box-addr",
		BoxTreasury: "treasury-addr",
		Winner:      "winner-wallet",
		Amount:      500,
		NftID:       "nft-1",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, counter.count("getAccountInfo"))
	assert.Zero(t, counter.count("sendTransaction"))
}

func TestRecoverBoxSubmitsWhenProofMissing(t *testing.T) {
	counter := newRPCCounter()
	srv := rpcServer(t, func(method string, _ []json.RawMessage) (interface{}, *rpcError) {
		counter.inc(method)
		switch method {
		case "getAccountInfo":
			return map[string]interface{}{"value": nil}, nil
		case "getLatestBlockhash":
			return map[string]interface{}{"value": map[string]interface{}{"blockhash": "hash-1"}}, nil
		case "sendTransaction":
			return "sig-1", nil
		case "getSignatureStatuses":
			return []map[string]interface{}{{"confirmed": true}}, nil
		default:
			return nil, &rpcError{Code: -32601, Message: "unexpected method " + method}
		}
	})
	defer srv.Close()

	program := testProgram(t, srv.URL)
	err := program.RecoverBox(context.Background(), RecoverBoxParams{
		BoxAddress:  "box-addr",
		BoxTreasury: "treasury-addr",
		Winner:      "winner-wallet",
		Amount:      500,
		NftID:       "nft-1",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, counter.count("sendTransaction"))
}

func TestProofExists(t *testing.T) {
	proof := DeriveAddress("prog-id", []byte(seedBoxWinner), []byte("nft-1"))

	srv := rpcServer(t, func(method string, params []json.RawMessage) (interface{}, *rpcError) {
		require.Equal(t, "getAccountInfo", method)
		var address string
		require.NoError(t, json.Unmarshal(params[0], &address))
		if address == proof {
			return map[string]interface{}{
				"value": map[string]interface{}{"owner": "prog-id", "lamports": 1, "data": ""},
			}, nil
		}
		return map[string]interface{}{"value": nil}, nil
	})
	defer srv.Close()

	program := testProgram(t, srv.URL)
	exists, err := program.ProofExists(context.Background(), "nft-1")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = program.ProofExists(context.Background(), "nft-2")
	require.NoError(t, err)
	assert.False(t, exists)
}
