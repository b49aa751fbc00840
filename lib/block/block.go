// Package block defines the interface required for all ledger connections.
package block

import (
	"context"
	"log"
	"math/big"

	"github.com/agrimart/bridge/lib/block/ethereum"
	"github.com/agrimart/bridge/lib/block/types"
	"github.com/agrimart/bridge/lib/config"
	"github.com/agrimart/bridge/lib/util"
)

// Signer aliases the ledger-facing signer type so callers can stay on this package.
type Signer = types.Signer

// Ledger is the fixed call contract against the remote ledger. Submissions block until
// finality or until ctx expires; failures are normalized into types.LedgerError kinds.
// Retry policy belongs to the callers, not here.
type Ledger interface {
	// member-type methods
	AvgBlock() int // average block mining rate in seconds
	// methods
	Close()
	Balance(account string) (*big.Int, error)
	IdentityExists(ctx context.Context, name string) (bool, error)
	RegisterIdentity(ctx context.Context, s Signer, name, secret string) (types.Receipt, error)
	EstimateTransferFee(s Signer, to string, amount *big.Int, secret string) (*big.Int, error)
	TransferFunds(ctx context.Context, s Signer, to string, amount *big.Int, secret string) (types.Receipt, error)
	DepositFunds(ctx context.Context, s Signer, amount *big.Int) (types.Receipt, error)
}

// Init loads all the clients read from the config to ledgers into a map. A network name
// declared twice keeps its first entry, so a duplicated config line cannot silently
// replace a live client.
func Init(bc []config.BlockConfig) (m map[string]Ledger, err error) {
	m = make(map[string]Ledger)

	var names []string

	for _, blk := range bc {
		if blk.Node == "" || blk.Contract == "" {
			log.Printf("Ledger %s has no node or contract address. Ignoring...\n", blk.Name)

			continue
		}

		if util.In(names, blk.Name) {
			log.Printf("Ledger %s declared more than once. Ignoring duplicate...\n", blk.Name)

			continue
		}

		var tmp *ethereum.Ethereum

		if tmp, err = ethereum.Init(blk.Node, blk.Secret, blk.Contract); err != nil {
			return
		}

		m[blk.Name] = tmp
		names = append(names, blk.Name)
	}

	return
}

// End closes gracefully all the ledger clients opened.
func End(bc map[string]Ledger) {
	for _, blk := range bc {
		blk.Close()
	}
}
