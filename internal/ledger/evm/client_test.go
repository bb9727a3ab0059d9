package evm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/jonboulle/clockwork"

	"amm-lab/internal/artifact"
	"amm-lab/internal/domain"
	"amm-lab/internal/ledger"
)

// Well-known development key; never holds real funds.
const testKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

const testChainID = 31337

type handler func(params []json.RawMessage) (any, *RPCError)

// fakeNode is a minimal JSON-RPC node.
type fakeNode struct {
	mu       sync.Mutex
	handlers map[string]handler
	calls    map[string]int
	sent     []*types.Transaction
	failHTTP map[string]int // method -> remaining HTTP 500 responses
}

func newFakeNode() *fakeNode {
	n := &fakeNode{
		handlers: make(map[string]handler),
		calls:    make(map[string]int),
		failHTTP: make(map[string]int),
	}
	n.handlers["eth_chainId"] = func([]json.RawMessage) (any, *RPCError) { return hexutil.EncodeUint64(testChainID), nil }
	n.handlers["eth_getTransactionCount"] = func([]json.RawMessage) (any, *RPCError) { return "0x5", nil }
	n.handlers["eth_gasPrice"] = func([]json.RawMessage) (any, *RPCError) { return "0x3b9aca00", nil }
	n.handlers["eth_estimateGas"] = func([]json.RawMessage) (any, *RPCError) { return "0x186a0", nil }
	n.handlers["eth_sendRawTransaction"] = func(params []json.RawMessage) (any, *RPCError) {
		var raw string
		json.Unmarshal(params[0], &raw)
		data, _ := hexutil.Decode(raw)
		tx := new(types.Transaction)
		if err := tx.UnmarshalBinary(data); err != nil {
			return nil, &RPCError{Code: -32000, Message: err.Error()}
		}
		n.sent = append(n.sent, tx)
		return tx.Hash(), nil
	}
	return n
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     uint64            `json:"id"`
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}
	json.NewDecoder(r.Body).Decode(&req)

	n.mu.Lock()
	n.calls[req.Method]++
	if n.failHTTP[req.Method] > 0 {
		n.failHTTP[req.Method]--
		n.mu.Unlock()
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	h, ok := n.handlers[req.Method]
	var result any
	var rpcErr *RPCError
	if ok {
		result, rpcErr = h(req.Params)
	} else {
		rpcErr = &RPCError{Code: -32601, Message: "method not found: " + req.Method}
	}
	n.mu.Unlock()

	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	if rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (n *fakeNode) count(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

func newTestClient(t *testing.T, node *fakeNode, cfg Config, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(node)
	t.Cleanup(server.Close)

	cfg.PrivateKey = testKey
	rpc := NewRPCClient(server.URL, WithRetryDelay(time.Millisecond))
	c, err := NewClient(context.Background(), rpc, cfg, opts...)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func tokenArtifact(t *testing.T) *domain.ContractArtifact {
	t.Helper()
	a, err := artifact.EmbeddedProvider{}.Artifact(context.Background(), domain.ContractKindToken)
	if err != nil {
		t.Fatal(err)
	}
	a.Bytecode = []byte{0x60, 0x80, 0x60, 0x40}
	return a
}

func testAccount(t *testing.T) common.Address {
	key, err := ParsePrivateKey(testKey)
	if err != nil {
		t.Fatal(err)
	}
	return crypto.PubkeyToAddress(key.PublicKey)
}

func TestNewClient_InvalidKey(t *testing.T) {
	_, err := NewClient(context.Background(), NewRPCClient("http://127.0.0.1:1"), Config{PrivateKey: "0xnothex"})
	if !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}

func TestClient_DeploySignsEIP155(t *testing.T) {
	node := newFakeNode()
	c := newTestClient(t, node, Config{})

	if c.Account() != testAccount(t) {
		t.Fatalf("account = %s", c.Account().Hex())
	}
	id, _ := c.ChainID(context.Background())
	if id.Int64() != testChainID {
		t.Errorf("chain id = %s", id)
	}

	tx, err := c.Deploy(context.Background(), tokenArtifact(t), "Alpha", "ALP", big.NewInt(1000))
	if err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	if tx.Nonce != 5 {
		t.Errorf("nonce = %d, want 5", tx.Nonce)
	}
	if want := crypto.CreateAddress(c.Account(), 5); tx.ContractAddress != want {
		t.Errorf("predicted address = %s, want %s", tx.ContractAddress.Hex(), want.Hex())
	}

	if len(node.sent) != 1 {
		t.Fatalf("sent %d transactions", len(node.sent))
	}
	sent := node.sent[0]
	if sent.To() != nil {
		t.Error("deployment must have no recipient")
	}
	sender, err := types.Sender(types.NewEIP155Signer(big.NewInt(testChainID)), sent)
	if err != nil || sender != c.Account() {
		t.Errorf("sender = %s, %v", sender.Hex(), err)
	}
	if sent.Gas() != 120000 {
		t.Errorf("gas = %d, want estimate + 20%%", sent.Gas())
	}
	if sent.Hash() != tx.Hash {
		t.Errorf("hash mismatch")
	}
	if got := sent.Data()[:4]; !bytes.Equal(got, []byte{0x60, 0x80, 0x60, 0x40}) {
		t.Errorf("data prefix = %x, want bytecode", got)
	}
}

func TestClient_NonceAdvancesLocally(t *testing.T) {
	node := newFakeNode()
	c := newTestClient(t, node, Config{GasLimit: 200_000})
	token, err := ledger.NewContract(common.HexToAddress("0x10"), tokenArtifact(t))
	if err != nil {
		t.Fatal(err)
	}

	for want := uint64(5); want < 8; want++ {
		tx, err := c.Transact(context.Background(), token, ledger.MethodApprove, common.HexToAddress("0x20"), big.NewInt(1))
		if err != nil {
			t.Fatalf("Transact: %v", err)
		}
		if tx.Nonce != want {
			t.Errorf("nonce = %d, want %d", tx.Nonce, want)
		}
	}
	if n := node.count("eth_getTransactionCount"); n != 1 {
		t.Errorf("nonce fetched %d times, want 1", n)
	}
	if n := node.count("eth_estimateGas"); n != 0 {
		t.Errorf("estimateGas called %d times with fixed gas limit", n)
	}
}

func TestClient_FailedSendRefetchesNonce(t *testing.T) {
	node := newFakeNode()
	node.failHTTP["eth_sendRawTransaction"] = 1
	c := newTestClient(t, node, Config{GasLimit: 200_000})
	token, _ := ledger.NewContract(common.HexToAddress("0x10"), tokenArtifact(t))

	if _, err := c.Transact(context.Background(), token, ledger.MethodApprove, common.HexToAddress("0x20"), big.NewInt(1)); err == nil {
		t.Fatal("expected send error")
	}
	if n := node.count("eth_sendRawTransaction"); n != 1 {
		t.Errorf("send attempted %d times, want 1", n)
	}

	tx, err := c.Transact(context.Background(), token, ledger.MethodApprove, common.HexToAddress("0x20"), big.NewInt(1))
	if err != nil {
		t.Fatalf("Transact: %v", err)
	}
	if tx.Nonce != 5 {
		t.Errorf("nonce = %d, want 5 (refetched)", tx.Nonce)
	}
	if n := node.count("eth_getTransactionCount"); n != 2 {
		t.Errorf("nonce fetched %d times, want 2", n)
	}
}

func TestClient_EstimateRevertIsReverted(t *testing.T) {
	node := newFakeNode()
	stringType, _ := abi.NewType("string", "", nil)
	packed, _ := abi.Arguments{{Type: stringType}}.Pack("InsufficientAllowance")
	revertData := hexutil.Encode(append([]byte{0x08, 0xc3, 0x79, 0xa0}, packed...))
	node.handlers["eth_estimateGas"] = func([]json.RawMessage) (any, *RPCError) {
		data, _ := json.Marshal(revertData)
		return nil, &RPCError{Code: 3, Message: "execution reverted", Data: data}
	}
	c := newTestClient(t, node, Config{})
	token, _ := ledger.NewContract(common.HexToAddress("0x10"), tokenArtifact(t))

	_, err := c.Transact(context.Background(), token, "transferFrom", common.HexToAddress("0x1"), common.HexToAddress("0x2"), big.NewInt(1))

	var re *ledger.RevertError
	if !errors.As(err, &re) {
		t.Fatalf("expected *ledger.RevertError, got %v", err)
	}
	if re.Reason != "InsufficientAllowance" {
		t.Errorf("reason = %q", re.Reason)
	}
	if len(node.sent) != 0 {
		t.Error("reverting transaction must not be sent")
	}
}

func TestClient_CallDecodes(t *testing.T) {
	node := newFakeNode()
	node.failHTTP["eth_call"] = 1
	node.handlers["eth_call"] = func(params []json.RawMessage) (any, *RPCError) {
		var msg callMsg
		json.Unmarshal(params[0], &msg)
		if msg.To == nil || *msg.To != common.HexToAddress("0x10") {
			return nil, &RPCError{Code: -32000, Message: "wrong target"}
		}
		return hexutil.Encode(common.LeftPadBytes(big.NewInt(42).Bytes(), 32)), nil
	}
	c := newTestClient(t, node, Config{})
	token, _ := ledger.NewContract(common.HexToAddress("0x10"), tokenArtifact(t))

	bal, err := ledger.TokenBalance(context.Background(), c, token, c.Account())
	if err != nil {
		t.Fatalf("TokenBalance: %v", err)
	}
	if bal.Int64() != 42 {
		t.Errorf("balance = %s", bal)
	}
	if n := node.count("eth_call"); n != 2 {
		t.Errorf("eth_call attempts = %d, want 2 (read retried)", n)
	}
}

func TestClient_WaitForConfirmation(t *testing.T) {
	node := newFakeNode()
	contract := common.HexToAddress("0xabc")
	var polls int
	node.handlers["eth_getTransactionReceipt"] = func([]json.RawMessage) (any, *RPCError) {
		polls++
		if polls < 3 {
			return nil, nil
		}
		return map[string]any{
			"transactionHash": common.HexToHash("0x01"),
			"blockNumber":     "0x10",
			"gasUsed":         "0x5208",
			"status":          "0x1",
			"contractAddress": contract,
		}, nil
	}
	c := newTestClient(t, node, Config{PollInterval: time.Millisecond, ConfirmTimeout: 5 * time.Second})

	rcpt, err := c.WaitForConfirmation(context.Background(), &ledger.PendingTx{Hash: common.HexToHash("0x01"), Method: ledger.MethodConstructor})
	if err != nil {
		t.Fatalf("WaitForConfirmation: %v", err)
	}
	if rcpt.BlockNumber != 16 || rcpt.GasUsed != 21000 || !rcpt.Success || rcpt.ContractAddress != contract {
		t.Errorf("receipt = %+v", rcpt)
	}
}

func TestClient_WaitReverted(t *testing.T) {
	node := newFakeNode()
	node.handlers["eth_getTransactionReceipt"] = func([]json.RawMessage) (any, *RPCError) {
		return map[string]any{
			"transactionHash": common.HexToHash("0x02"),
			"blockNumber":     "0x11",
			"gasUsed":         "0x5208",
			"status":          "0x0",
			"contractAddress": nil,
		}, nil
	}
	c := newTestClient(t, node, Config{})

	rcpt, err := c.WaitForConfirmation(context.Background(), &ledger.PendingTx{Hash: common.HexToHash("0x02")})
	if !errors.Is(err, ledger.ErrReverted) {
		t.Fatalf("expected ErrReverted, got %v", err)
	}
	if rcpt == nil || rcpt.Success {
		t.Errorf("receipt = %+v", rcpt)
	}
}

func TestClient_WaitTimesOut(t *testing.T) {
	node := newFakeNode()
	node.handlers["eth_getTransactionReceipt"] = func([]json.RawMessage) (any, *RPCError) { return nil, nil }
	clock := clockwork.NewFakeClock()
	c := newTestClient(t, node, Config{PollInterval: time.Hour, ConfirmTimeout: time.Minute}, WithClock(clock))

	errCh := make(chan error, 1)
	go func() {
		_, err := c.WaitForConfirmation(context.Background(), &ledger.PendingTx{Hash: common.HexToHash("0x03")})
		errCh <- err
	}()

	// deadline timer + poll timer
	clock.BlockUntil(2)
	clock.Advance(time.Minute)

	select {
	case err := <-errCh:
		if !errors.Is(err, ledger.ErrTimedOut) {
			t.Fatalf("expected ErrTimedOut, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("WaitForConfirmation did not time out")
	}
}

func TestClient_HeadWakesWait(t *testing.T) {
	node := newFakeNode()
	var mu sync.Mutex
	ready := false
	node.handlers["eth_getTransactionReceipt"] = func([]json.RawMessage) (any, *RPCError) {
		mu.Lock()
		defer mu.Unlock()
		if !ready {
			return nil, nil
		}
		return map[string]any{"transactionHash": common.HexToHash("0x04"), "blockNumber": "0x1", "gasUsed": "0x1", "status": "0x1"}, nil
	}
	heads := make(chan uint64, 1)
	c := newTestClient(t, node, Config{PollInterval: time.Hour, ConfirmTimeout: time.Hour}, WithHeads(heads))

	done := make(chan error, 1)
	go func() {
		_, err := c.WaitForConfirmation(context.Background(), &ledger.PendingTx{Hash: common.HexToHash("0x04")})
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	ready = true
	mu.Unlock()
	heads <- 1

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("WaitForConfirmation: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("head did not wake the wait")
	}
}
