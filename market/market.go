// Package market implements the marketplace ledger-bridge microservice.
//
// This microservice implements a RESTful API for identity registration, fund deposits
// and fund transfers. Registrations are dual-written: the ledger is the source of truth
// and is written first, the local credential store second. A registration intent is
// persisted around the sequence so the reconciler service can repair a write that
// stopped halfway.
package market

import (
	"context"
	"encoding/hex"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/tarancss/hd"

	"github.com/agrimart/bridge/lib/block"
	"github.com/agrimart/bridge/lib/msg"
	"github.com/agrimart/bridge/lib/store"
	"github.com/agrimart/bridge/lib/store/db"
)

// unitDecimals is the scale between the caller-facing currency unit and the ledger's
// base unit (wei).
const unitDecimals = 18

// operatorID is the HD wallet derivation id of the operator account that signs and
// funds registration transactions. User accounts start at 1.
const operatorID uint32 = 0

// Market contains the data necessary to deliver the service
type Market struct {
	dbtype   string
	db       store.DB                // db connection
	bc       map[string]block.Ledger // ledger clients
	hd       *hd.HdWallet            // HD wallet for signing keys
	mb       msg.MsgBroker
	jwtKey   []byte
	finality time.Duration // bounded wait for ledger finality
	s        *http.Server  // http server
	ss       *http.Server  // https server
	sc       chan struct{} // http server channel used for graceful shutdowns
}

// New returns a pointer to a new Market service
func New(dbtype string, dbConn store.DB, mb msg.MsgBroker, bc map[string]block.Ledger, hdw *hd.HdWallet,
	jwtKey []byte, finality time.Duration) *Market {
	return &Market{
		dbtype:   dbtype,
		db:       dbConn,
		mb:       mb,
		bc:       bc,
		hd:       hdw,
		jwtKey:   jwtKey,
		finality: finality,
	}
}

// Stop shuts down the http servers implementing the RESTful API and closes gracefully
// the connections to message broker and database.
func (m *Market) Stop() {
	var err error
	// shutdown http server
	if m.s != nil {
		if err = m.s.Shutdown(context.Background()); err != nil {
			log.Printf("Error in http server shutdown:%e", err)
		}
	}
	if m.ss != nil {
		if err = m.ss.Shutdown(context.Background()); err != nil {
			log.Printf("Error in https server shutdown:%e", err)
		}
	}
	close(m.sc) // close server channels to indicate shutdowns have finished
	// close message broker
	if err = m.mb.Close(); err != nil {
		log.Printf("Error closing message broker:%e", err)
	}
	// close database
	if m.db != nil {
		err = db.Close(m.dbtype, m.db)
		log.Printf("Disconnecting %v database, err:%e\n", m.dbtype, err)
	}
}

// ManageEvents starts go routines to consume the message broker queues for resolution
// events sent by the reconciler service. For each connected ledger, two channels are
// opened, one for resolution events, and one for errors.
func (m *Market) ManageEvents() error {
	// for each ledger establish a process to read events from the broker queues
	for net := range m.bc {
		var mut *sync.Mutex = new(sync.Mutex)
		mut.Lock()
		eveCh, errCh, err := m.mb.GetResolutions(net, mut)
		if err != nil {
			return err
		}

		// launch event channel reader
		go func(netName string) {
			log.Printf("[%s] Start listening to reconciler event channel", netName)
			for eve := range eveCh {
				log.Printf("[%s] Registration intent for %q resolved (outcome %d)", netName, eve.Username, eve.Outcome)
				mut.Unlock()
			}
			log.Printf("[%s] Stop listening to reconciler event channel", netName)
		}(net)

		// launch error channel reader
		go func(netName string) {
			log.Printf("[%s] Start listening to err channel", netName)
			for e := range errCh {
				log.Printf("[%s] Received error %+v", netName, e)
			}
			log.Printf("[%s] Stop listening to err channel", netName)
		}(net)
	}
	return nil
}

// ledger resolves the ledger client for a request and returns the resolved network
// name. An empty name is allowed when exactly one ledger is configured.
func (m *Market) ledger(net string) (string, block.Ledger, error) {
	if net == "" && len(m.bc) == 1 {
		for name, b := range m.bc {
			return name, b, nil
		}
	}

	b, ok := m.bc[net]
	if !ok {
		return "", nil, ErrNoNet
	}

	return net, b, nil
}

// signer derives the signing account for the given HD wallet id.
func (m *Market) signer(id uint32) (block.Signer, error) {
	addr, key, _, err := m.hd.Address(0, hd.External, id)
	if err != nil {
		return block.Signer{}, err
	}

	return block.Signer{
		Address: "0x" + hex.EncodeToString(addr),
		Key:     hex.EncodeToString(key),
	}, nil
}
