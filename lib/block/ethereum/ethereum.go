// Implements the ledger interface for ethereum networks running the marketplace
// wallet contract.
package ethereum

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/powerman/rpc-codec/jsonrpc2"
	"github.com/tarancss/ethcli"

	"github.com/agrimart/bridge/lib/block/types"
)

// Ethereum implements a connection to an ethereum-type ledger hosting the wallet
// contract. The thin client covers balances, submission and receipts; read-only
// contract queries go through a direct eth_call on the client's RPC connection.
type Ethereum struct {
	c        *ethcli.EthCli
	contract string
}

const (
	avgBlockSecs = 15
	pollInterval = 2 * time.Second
	// consecutive receipt-poll errors tolerated before giving up on the node
	maxPollErrs = 3
)

// ErrNoNode is returned when a connection to the node cannot be established.
var ErrNoNode = errors.New("cannot connect to ethereum node")

// Init returns a connection to an ethereum node, using secret if necessary for
// authentication. contract is the address of the deployed wallet contract.
func Init(node, secret, contract string) (*Ethereum, error) {
	c := ethcli.Init(node, secret)
	if c == nil {
		return nil, ErrNoNode
	}

	return &Ethereum{c: c, contract: contract}, nil
}

// AvgBlock returns the average time to mine a block in seconds.
func (e *Ethereum) AvgBlock() int {
	return avgBlockSecs
}

// Close ends a connection.
func (e *Ethereum) Close() {
	_ = e.c.End()
}

// Balance returns the account's balance in base units.
func (e *Ethereum) Balance(account string) (*big.Int, error) {
	bal, _, err := e.c.GetBalance(account, "")
	if err != nil {
		return nil, classify("cannot get balance", err)
	}

	return bal, nil
}

// IdentityExists queries the contract's identity registry via eth_call. The query is
// read-only and never costs gas.
func (e *Ethereum) IdentityExists(ctx context.Context, name string) (bool, error) {
	params := []interface{}{
		map[string]string{"to": e.contract, "data": "0x" + hex.EncodeToString(callUserExists(name))},
		"latest",
	}

	var res string

	done := make(chan error, 1)
	go func() { done <- e.c.Call("eth_call", params, &res) }()

	select {
	case <-ctx.Done():
		return false, types.NewTimeout("identity query timed out", ctx.Err())
	case err := <-done:
		if err != nil {
			return false, classify("identity query failed", err)
		}
	}

	return decodeBool(res), nil
}

// RegisterIdentity submits the contract register call signed by s and blocks until the
// transaction is final or ctx expires.
func (e *Ethereum) RegisterIdentity(ctx context.Context, s types.Signer, name, secret string) (types.Receipt, error) {
	return e.submit(ctx, s, callRegister(name, secret), nil)
}

// EstimateTransferFee estimates the fee of a transferFunds submission using the exact
// same calldata as the real call, since cost depends on the parameters. The estimate
// is gas * current gas price, in base units.
func (e *Ethereum) EstimateTransferFee(s types.Signer, to string, amount *big.Int, secret string) (*big.Int, error) {
	data, err := callTransferFunds(to, amount, secret)
	if err != nil {
		return nil, types.NewLogic("bad transfer parameters", err)
	}

	price, gas, _, err := e.c.SendTrx(s.Address, e.contract, "", "0x0", data, s.Key, 0, true)
	if err != nil {
		return nil, classify("fee estimation failed", err)
	}

	fee := new(big.Int).SetUint64(price)

	return fee.Mul(fee, new(big.Int).SetUint64(gas)), nil
}

// TransferFunds submits the contract transfer call signed by s and blocks until final.
func (e *Ethereum) TransferFunds(ctx context.Context, s types.Signer, to string, amount *big.Int, secret string) (types.Receipt, error) {
	data, err := callTransferFunds(to, amount, secret)
	if err != nil {
		return types.Receipt{}, types.NewLogic("bad transfer parameters", err)
	}

	return e.submit(ctx, s, data, nil)
}

// DepositFunds submits the contract deposit call with the amount attached as value.
func (e *Ethereum) DepositFunds(ctx context.Context, s types.Signer, amount *big.Int) (types.Receipt, error) {
	return e.submit(ctx, s, callDepositFunds(), amount)
}

// submit signs and sends a contract call, then waits for its receipt. value, when not
// nil, is attached to the transaction in base units.
func (e *Ethereum) submit(ctx context.Context, s types.Signer, data []byte, value *big.Int) (types.Receipt, error) {
	amount := "0x0"
	if value != nil {
		amount = "0x" + value.Text(16)
	}

	_, _, hash, err := e.c.SendTrx(s.Address, e.contract, "", amount, data, s.Key, 0, false)
	if err != nil {
		return types.Receipt{}, classify("submission failed", err)
	}

	return e.waitReceipt(ctx, "0x"+hex.EncodeToString(hash))
}

// waitReceipt polls the node until the transaction is mined, ctx expires or the node
// keeps failing. A mined-but-reverted transaction is a logic rejection.
func (e *Ethereum) waitReceipt(ctx context.Context, hash string) (types.Receipt, error) {
	t := time.NewTicker(pollInterval)
	defer t.Stop()

	var errCount int

	for {
		trx, err := e.c.GetTrx(hash)

		switch {
		case errors.Is(err, ethcli.ErrNoTrx):
			errCount = 0 // not mined yet, keep waiting
		case err != nil:
			// the node may not know the hash yet right after submission
			if errCount++; errCount >= maxPollErrs {
				return types.Receipt{}, classify("cannot confirm transaction "+hash, err)
			}
		case trx.Status == ethcli.TrxFailed:
			return types.Receipt{Hash: hash, Block: trx.Blk, Fee: trx.Fee, Status: types.StatusFailed},
				types.NewLogic("transaction "+hash+" reverted", nil)
		case trx.Status == ethcli.TrxSuccess:
			return types.Receipt{Hash: hash, Block: trx.Blk, Fee: trx.Fee, Status: types.StatusSuccess}, nil
		default:
			errCount = 0 // mined block not linked yet, keep waiting
		}

		select {
		case <-ctx.Done():
			return types.Receipt{}, types.NewTimeout("transaction "+hash+" not final before deadline", ctx.Err())
		case <-t.C:
		}
	}
}

// decodeBool interprets an eth_call return word as a boolean.
func decodeBool(res string) bool {
	res = strings.TrimPrefix(res, "0x")

	return strings.ContainsRune(strings.TrimLeft(res, "0"), '1')
}

// classify normalizes node errors: an error object returned by the node itself means
// the call is invalid per ledger rules, anything else is a transport failure.
func classify(reason string, err error) *types.LedgerError {
	var rpcErr *jsonrpc2.Error
	if errors.As(err, &rpcErr) {
		return types.NewLogic(reason, err)
	}

	return types.NewTransport(reason, err)
}
