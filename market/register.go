package market

import (
	"context"
	"errors"
	"fmt"
	"log"

	"golang.org/x/crypto/bcrypt"

	"github.com/agrimart/bridge/lib/block/types"
	"github.com/agrimart/bridge/lib/msg"
	"github.com/agrimart/bridge/lib/store"
)

// Register creates a new identity on the ledger and in the credential store. The ledger
// is written first and is the source of truth: the local row is inserted only after the
// registration transaction is final. A registration intent row is persisted before the
// ledger write and advanced as the sequence progresses, so a crash between the two
// writes leaves a record the reconciler can act on.
func (m *Market) Register(ctx context.Context, net, username, password string) error {
	netName, b, err := m.ledger(net)
	if err != nil {
		return err
	}

	// local duplicate check first, it is the cheap one
	if _, err = m.db.FindUser(ctx, username); err == nil {
		return ErrExistsLocal
	} else if !errors.Is(err, store.ErrUserNotFound) {
		return fmt.Errorf("register: find user: %w", err)
	}

	// the ledger is authoritative for existence
	exists, err := b.IdentityExists(ctx, username)
	if err != nil {
		return fmt.Errorf("register: identity lookup: %w", err)
	}

	if exists {
		return ErrExistsLedger
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("register: hash password: %w", err)
	}

	// persist the intent before touching the ledger so a crash leaves a trace
	if err = m.db.PutIntent(ctx, username, string(hash)); err != nil {
		return fmt.Errorf("register: put intent: %w", err)
	}

	op, err := m.signer(operatorID)
	if err != nil {
		return fmt.Errorf("register: operator signer: %w", err)
	}

	lctx, cancel := context.WithTimeout(ctx, m.finality)
	defer cancel()

	receipt, err := b.RegisterIdentity(lctx, op, username, password)
	if err != nil {
		// a ledger rejection usually means the identity got taken between the lookup
		// and the submission; the intent is moot either way. The ledger's reason is
		// carried through so reverts with another cause stay diagnosable.
		if kind, ok := types.ErrKind(err); ok && kind == types.LogicRejection {
			if derr := m.db.DeleteIntent(ctx, username); derr != nil {
				log.Printf("[%s] Error deleting intent for %q: %e", netName, username, derr)
			}

			return fmt.Errorf("%w: %v", ErrExistsLedger, err)
		}
		// transport failures and timeouts leave the pending intent in place: the
		// transaction may still land, the reconciler will find out
		return fmt.Errorf("register: ledger write: %w", err)
	}

	log.Printf("[%s] Registered identity %q on ledger, trx %s block %d", netName, username, receipt.Hash, receipt.Block)

	if err = m.db.SetIntentState(ctx, username, store.IntentLedgerDone); err != nil {
		log.Printf("[%s] Error marking intent ledger-done for %q: %e", netName, username, err)
	}

	if _, err = m.db.InsertUser(ctx, username, string(hash)); err != nil {
		if errors.Is(err, store.ErrUserExists) {
			// a concurrent registration won the local insert, nothing to repair
			if derr := m.db.DeleteIntent(ctx, username); derr != nil {
				log.Printf("[%s] Error deleting intent for %q: %e", netName, username, derr)
			}

			return ErrExistsLocal
		}
		// ledger write is final but the local row is missing: hand over to the
		// reconciler
		if merr := m.mb.SendReconcile(netName, msg.ReconcileReq{
			Net:      netName,
			Username: username,
			Reason:   fmt.Sprintf("local insert failed: %s", err),
		}); merr != nil {
			log.Printf("[%s] Error sending reconcile request for %q: %e", netName, username, merr)
		}

		return fmt.Errorf("register: local insert: %w", err)
	}

	if err = m.db.DeleteIntent(ctx, username); err != nil {
		log.Printf("[%s] Error deleting intent for %q: %e", netName, username, err)
	}

	return nil
}
