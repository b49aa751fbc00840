// Package reconciler implements the intent-repair microservice. The reconciler watches
// the registration intents the market service persists around its dual writes and
// brings the credential store back in line with the ledger: intents whose identity the
// ledger confirms are completed locally, stale intents the ledger never confirmed are
// discarded. The ledger is the source of truth in both directions.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/agrimart/bridge/lib/block"
	"github.com/agrimart/bridge/lib/msg"
	"github.com/agrimart/bridge/lib/store"
)

// sweepInterval is the pause between two sweeps of the intent table.
const sweepInterval = 60 * time.Second

// Reconciler implements a reconciler service.
type Reconciler struct {
	dbtype string
	db     store.DB
	bc     map[string]block.Ledger // map of ledger clients
	mb     msg.MsgBroker
	grace  time.Duration // age before a pending intent may be discarded
	done   chan struct{} // closed to stop the sweeper
}

// New instantiates a new reconciler service.
func New(dbtype string, db store.DB, mb msg.MsgBroker, bc map[string]block.Ledger, grace time.Duration) *Reconciler {
	return &Reconciler{
		dbtype: dbtype,
		db:     db,
		bc:     bc,
		mb:     mb,
		grace:  grace,
		done:   make(chan struct{}),
	}
}

// Reconcile starts the periodic sweep of the intent table and, for each connected
// ledger, a consumer of the market's reconcile requests. The returned channel receives
// a message when the sweeper has terminated after Stop.
func (e *Reconciler) Reconcile() chan string {
	ret := make(chan string, 1)

	for net := range e.bc {
		if err := e.ManageReconcileRequests(net); err != nil {
			log.Printf("[%s] Cannot consume reconcile requests from broker, err:%e", net, err)

			continue
		}
	}

	// sweeper routine
	go func() {
		for {
			e.Sweep(context.Background())
			select {
			case <-e.done:
				ret <- "Done!"

				return
			case <-time.After(sweepInterval):
			}
		}
	}()

	return ret
}

// Stop terminates the sweeper routine.
func (e *Reconciler) Stop() {
	close(e.done)
}

// Sweep loads all registration intents and resolves each against the ledgers.
func (e *Reconciler) Sweep(ctx context.Context) {
	intents, err := e.db.ListIntents(ctx)
	if err != nil {
		log.Printf("Cannot load intents from DB, err:%e", err)

		return
	}

	if len(intents) > 0 {
		log.Printf("Sweeping %d registration intents", len(intents))
	}

	for i := range intents {
		if err = e.Resolve(ctx, intents[i]); err != nil {
			log.Printf("Error resolving intent for %q, err:%e", intents[i].Username, err)
		}
	}
}

// Resolve settles a single registration intent. If any ledger confirms the identity,
// the local credential row is created from the intent and a COMPLETED event is
// published. If no ledger confirms it and the intent is still pending after the grace
// period, it is dropped and a DISCARDED event is published. Anything else is left for a
// later sweep.
func (e *Reconciler) Resolve(ctx context.Context, in store.RegIntent) error {
	for net, b := range e.bc {
		exists, err := b.IdentityExists(ctx, in.Username)
		if err != nil {
			return fmt.Errorf("reconciler: identity lookup on %s: %w", net, err)
		}

		if exists {
			return e.complete(ctx, net, in)
		}
	}

	// no ledger knows the identity
	if in.State == store.IntentLedgerDone {
		// the market saw the transaction land, the node may be lagging
		log.Printf("Intent for %q is ledger-done but no ledger confirms it yet, keeping", in.Username)

		return nil
	}

	if time.Since(in.Updated) < e.grace {
		return nil
	}

	return e.discard(ctx, in)
}

// complete creates the credential row carried by the intent and publishes the event. A
// row inserted meanwhile by the market or a concurrent sweep counts as completed.
func (e *Reconciler) complete(ctx context.Context, net string, in store.RegIntent) error {
	if _, err := e.db.InsertUser(ctx, in.Username, in.PasswordHash); err != nil &&
		!errors.Is(err, store.ErrUserExists) {
		return fmt.Errorf("reconciler: insert user: %w", err)
	}

	if err := e.db.DeleteIntent(ctx, in.Username); err != nil && !errors.Is(err, store.ErrIntentNotFound) {
		return fmt.Errorf("reconciler: delete intent: %w", err)
	}

	log.Printf("[%s] Completed registration intent for %q", net, in.Username)

	return e.mb.SendResolution(net, msg.Resolution{Net: net, Username: in.Username, Outcome: msg.COMPLETED})
}

// discard drops an intent the ledger never confirmed and publishes the event to every
// connected ledger's consumers.
func (e *Reconciler) discard(ctx context.Context, in store.RegIntent) error {
	if err := e.db.DeleteIntent(ctx, in.Username); err != nil && !errors.Is(err, store.ErrIntentNotFound) {
		return fmt.Errorf("reconciler: delete intent: %w", err)
	}

	log.Printf("Discarded stale registration intent for %q", in.Username)

	for net := range e.bc {
		if err := e.mb.SendResolution(net, msg.Resolution{Net: net, Username: in.Username,
			Outcome: msg.DISCARDED}); err != nil {
			return err
		}
	}

	return nil
}

// ManageReconcileRequests starts a go routine to receive and settle reconcile requests
// published by the market service for the ledger named 'net'.
func (e *Reconciler) ManageReconcileRequests(net string) error {
	var mut *sync.Mutex = new(sync.Mutex)

	mut.Lock()

	reqCh, errCh, err := e.mb.GetReconciles(net, mut)
	if err != nil {
		return fmt.Errorf("reconciler: cannot get requests: %w", err)
	}

	// launch request channel reader
	go func() {
		log.Printf("[%s] Start listening to reconcile request channel", net)

		for {
			select {
			case req, ok := (<-reqCh):
				if !ok {
					log.Printf("[%s] Stop listening to reconcile request channel", net)

					break
				}

				log.Printf("[%s] Received reconcile request %+v", net, req)

				ctx := context.Background()

				in, err := e.intentFor(ctx, req.Username)
				if err != nil {
					log.Printf("[%s] No intent found for %q, err:%e", net, req.Username, err)
				} else if err = e.Resolve(ctx, in); err != nil {
					log.Printf("[%s] Error resolving intent for %q, err:%e", net, req.Username, err)
				}

				mut.Unlock()
			case e, ok := (<-errCh):
				if !ok {
					log.Printf("[%s] Stop listening to reconcile request channel", net)

					break
				}

				log.Printf("[%s] Received error %+v", net, e)
			}
		}
	}()

	return nil
}

// intentFor looks up a single intent by username.
func (e *Reconciler) intentFor(ctx context.Context, username string) (store.RegIntent, error) {
	intents, err := e.db.ListIntents(ctx)
	if err != nil {
		return store.RegIntent{}, err
	}

	for i := range intents {
		if intents[i].Username == username {
			return intents[i], nil
		}
	}

	return store.RegIntent{}, store.ErrIntentNotFound
}
