package market

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"

	"golang.org/x/crypto/bcrypt"

	"github.com/agrimart/bridge/lib/block/types"
	"github.com/agrimart/bridge/lib/store"
	"github.com/agrimart/bridge/lib/util"
)

// Login verifies the user's credentials against the local store and issues a bearer
// token. The ledger is not consulted.
func (m *Market) Login(ctx context.Context, username, password string) (string, error) {
	u, err := m.db.FindUser(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return "", ErrInvalidCredentials
		}

		return "", fmt.Errorf("login: find user: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return "", ErrInvalidCredentials
	}

	return m.issueToken(u)
}

// Transfer moves funds from the sender's ledger account to the destination address. The
// sender's credentials are verified locally before any ledger interaction, the amount
// is converted exactly to base units, and affordability (amount plus the estimated fee)
// is checked against the sender's ledger balance before the transaction is submitted.
func (m *Market) Transfer(ctx context.Context, net, username, toAddress, amount,
	password string) (types.Receipt, error) {
	netName, b, err := m.ledger(net)
	if err != nil {
		return types.Receipt{}, err
	}

	// credentials are checked before any ledger call
	u, err := m.db.FindUser(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return types.Receipt{}, ErrInvalidCredentials
		}

		return types.Receipt{}, fmt.Errorf("transfer: find user: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return types.Receipt{}, ErrInvalidCredentials
	}

	value, err := util.ToBase(amount, unitDecimals)
	if err != nil {
		return types.Receipt{}, err
	}

	s, err := m.signer(u.SignerID)
	if err != nil {
		return types.Receipt{}, fmt.Errorf("transfer: signer: %w", err)
	}

	// fee estimate uses the exact payload that will be submitted
	fee, err := b.EstimateTransferFee(s, toAddress, value, password)
	if err != nil {
		return types.Receipt{}, fmt.Errorf("transfer: fee estimate: %w", err)
	}

	bal, err := b.Balance(s.Address)
	if err != nil {
		return types.Receipt{}, fmt.Errorf("transfer: balance: %w", err)
	}

	need := new(big.Int).Add(value, fee)
	if bal.Cmp(need) < 0 {
		return types.Receipt{}, ErrInsufficientFunds
	}

	lctx, cancel := context.WithTimeout(ctx, m.finality)
	defer cancel()

	receipt, err := b.TransferFunds(lctx, s, toAddress, value, password)
	if err != nil {
		return types.Receipt{}, fmt.Errorf("transfer: ledger write: %w", err)
	}

	log.Printf("[%s] Transfer of %s from %q to %s, trx %s block %d fee %d",
		netName, amount, username, toAddress, receipt.Hash, receipt.Block, receipt.Fee)

	return receipt, nil
}

// Deposit sends the given amount from the caller's signing account into the marketplace
// contract. The caller is identified by the claims of its bearer token.
func (m *Market) Deposit(ctx context.Context, net string, claims *Claims, amount string) (types.Receipt, error) {
	netName, b, err := m.ledger(net)
	if err != nil {
		return types.Receipt{}, err
	}

	value, err := util.ToBase(amount, unitDecimals)
	if err != nil {
		return types.Receipt{}, err
	}

	s, err := m.signer(claims.SignerID)
	if err != nil {
		return types.Receipt{}, fmt.Errorf("deposit: signer: %w", err)
	}

	lctx, cancel := context.WithTimeout(ctx, m.finality)
	defer cancel()

	receipt, err := b.DepositFunds(lctx, s, value)
	if err != nil {
		return types.Receipt{}, fmt.Errorf("deposit: ledger write: %w", err)
	}

	log.Printf("[%s] Deposit of %s by %q, trx %s block %d", netName, amount, claims.Username, receipt.Hash, receipt.Block)

	return receipt, nil
}

// BalanceOf returns the caller's ledger balance in caller-facing units.
func (m *Market) BalanceOf(net string, claims *Claims) (string, error) {
	_, b, err := m.ledger(net)
	if err != nil {
		return "", err
	}

	s, err := m.signer(claims.SignerID)
	if err != nil {
		return "", fmt.Errorf("balance: signer: %w", err)
	}

	bal, err := b.Balance(s.Address)
	if err != nil {
		return "", fmt.Errorf("balance: %w", err)
	}

	return util.FromBase(bal, unitDecimals), nil
}
