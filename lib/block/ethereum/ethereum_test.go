package ethereum

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/agrimart/bridge/lib/block/types"
)

const (
	testContract = "0x22d5751e5c473E4b69Ab47784A1D8a4FAe5e27E1"
	testHash     = "0x2ba030485e79b5a98275b45d940e6fdd07b40dea593ef3b2a69b0a02a68a5872"
	testAccount  = "0xcba75F167B03e34B8a572c50273C082401b073Ed"

	wordTrue  = "0x0000000000000000000000000000000000000000000000000000000000000001"
	wordFalse = "0x0000000000000000000000000000000000000000000000000000000000000000"
)

// mockRequest
type mockRequest struct {
	Version string           `json:"jsonrpc"`
	Method  string           `json:"method"`
	Params  *json.RawMessage `json:"params"`
	ID      *json.RawMessage `json:"id"`
}

// mockResponse always carries the result key: the rpc codec rejects replies without it,
// and a pending transaction receipt is an explicit null.
type mockResponse struct {
	Version string           `json:"jsonrpc"`
	ID      *json.RawMessage `json:"id"`
	Result  interface{}      `json:"result"`
}

// mockNode serves the node methods the adapter hits, keyed by method name so the reply
// does not depend on call order. mined and status script the transaction lifecycle.
type mockNode struct {
	mu     sync.Mutex
	exists bool   // identity registry answer for eth_call
	mined  bool   // whether testHash has a receipt yet
	status string // receipt status once mined
}

func (m *mockNode) handler(w http.ResponseWriter, r *http.Request) {
	var req mockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	exists, mined, status := m.exists, m.mined, m.status
	m.mu.Unlock()

	res := mockResponse{Version: "2.0", ID: req.ID}

	switch req.Method {
	case "eth_getBalance":
		res.Result = "0x166c761c586733c0"
	case "eth_call":
		if exists {
			res.Result = wordTrue
		} else {
			res.Result = wordFalse
		}
	case "eth_getTransactionByHash":
		tx := map[string]interface{}{
			"hash":     testHash,
			"gasPrice": "0x4",
			"input":    "0x",
			"from":     testAccount,
			"to":       testContract,
			"value":    "0x0",
		}
		if mined {
			tx["blockNumber"] = "0x10"
		}
		res.Result = tx
	case "eth_getTransactionReceipt":
		if mined {
			res.Result = map[string]interface{}{
				"hash":        testHash,
				"blockNumber": "0x10",
				"status":      status,
				"gasUsed":     "0x5208",
			}
		} // a pending transaction has no receipt: result stays null
	case "eth_getBlockByNumber":
		res.Result = map[string]interface{}{"timestamp": "0x5dfeaab3"}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(res)
}

func newTestLedger(t *testing.T, node *mockNode) *Ethereum {
	t.Helper()

	mock := httptest.NewServer(http.HandlerFunc(node.handler))
	t.Cleanup(mock.Close)

	e, err := Init(mock.URL, "", testContract)
	if err != nil {
		t.Fatalf("Init: unexpected error:%v", err)
	}
	t.Cleanup(e.Close)

	return e
}

// TestBalance checks the balance query against the mock node.
func TestBalance(t *testing.T) {
	e := newTestLedger(t, &mockNode{})

	bal, err := e.Balance(testAccount)
	if err != nil {
		t.Fatalf("Balance: unexpected error:%v", err)
	}

	exp, _ := new(big.Int).SetString("1615796230433485760", 10)
	if bal.Cmp(exp) != 0 {
		t.Errorf("Balance:%s expected:%s", bal, exp)
	}
}

// TestIdentityExists checks both registry answers and the bounded wait.
func TestIdentityExists(t *testing.T) {
	node := &mockNode{}
	e := newTestLedger(t, node)
	ctx := context.Background()

	ok, err := e.IdentityExists(ctx, "alice")
	if err != nil || ok {
		t.Errorf("IdentityExists empty registry: ok:%v err:%v", ok, err)
	}

	node.mu.Lock()
	node.exists = true
	node.mu.Unlock()

	ok, err = e.IdentityExists(ctx, "alice")
	if err != nil || !ok {
		t.Errorf("IdentityExists registered: ok:%v err:%v", ok, err)
	}

	// expired context surfaces as a timeout kind
	cctx, cancel := context.WithCancel(ctx)
	cancel()

	if _, err = e.IdentityExists(cctx, "alice"); err == nil {
		t.Errorf("IdentityExists cancelled: expected error")
	} else if kind, ok := types.ErrKind(err); !ok || kind != types.Timeout {
		t.Errorf("IdentityExists cancelled: error:%v expected timeout kind", err)
	}
}

// TestWaitReceipt scripts the transaction lifecycle on the mock node: pending polls are
// tolerated until the receipt shows up, a success status yields the receipt and a
// reverted status yields a logic rejection.
func TestWaitReceipt(t *testing.T) {
	node := &mockNode{status: "0x1"}
	e := newTestLedger(t, node)

	// flip to mined while the first poll is waiting out its tick
	go func() {
		time.Sleep(pollInterval / 2)
		node.mu.Lock()
		node.mined = true
		node.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 3*pollInterval)
	defer cancel()

	receipt, err := e.waitReceipt(ctx, testHash)
	if err != nil {
		t.Fatalf("waitReceipt: unexpected error:%v", err)
	}
	if receipt.Status != types.StatusSuccess || receipt.Block != 0x10 || receipt.Fee != 0x5208*0x4 {
		t.Errorf("waitReceipt: receipt:%+v", receipt)
	}

	// a mined-but-reverted transaction is a logic rejection carrying the receipt
	node.mu.Lock()
	node.status = "0x0"
	node.mu.Unlock()

	receipt, err = e.waitReceipt(ctx, testHash)
	if kind, ok := types.ErrKind(err); !ok || kind != types.LogicRejection {
		t.Errorf("waitReceipt reverted: error:%v expected logic kind", err)
	}
	if receipt.Status != types.StatusFailed {
		t.Errorf("waitReceipt reverted: receipt:%+v", receipt)
	}
}

// TestWaitReceiptTimeout checks that a transaction stuck pending surfaces as a timeout
// once the finality deadline expires.
func TestWaitReceiptTimeout(t *testing.T) {
	e := newTestLedger(t, &mockNode{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.waitReceipt(ctx, testHash)
	if kind, ok := types.ErrKind(err); !ok || kind != types.Timeout {
		t.Errorf("waitReceipt pending: error:%v expected timeout kind", err)
	}
}
