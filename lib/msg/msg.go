// Package msg defines the interface for different message brokers.
package msg

import (
	"sync"
)

// Reconcile outcomes reported by the reconciler.
const (
	COMPLETED = 0 // local credential row created from a ledger-done intent
	DISCARDED = 1 // intent dropped, ledger never confirmed the identity
)

// ReconcileReq defines the message that the market service publishes when a dual write
// stopped halfway and the reconciler should act.
type ReconcileReq struct {
	Net      string `json:"net"`
	Username string `json:"username"`
	Reason   string `json:"reason"`
}

// Resolution defines the event the reconciler publishes once an intent is resolved.
type Resolution struct {
	Net      string `json:"net"`
	Username string `json:"username"`
	Outcome  int    `json:"outcome"`
}

type MsgBroker interface {
	Setup(interface{}) error
	Close() error

	// methods for market service
	SendReconcile(net string, r ReconcileReq) error
	GetResolutions(net string, mut *sync.Mutex) (<-chan Resolution, <-chan error, error)

	// methods for reconciler service
	GetReconciles(net string, mut *sync.Mutex) (<-chan ReconcileReq, <-chan error, error)
	SendResolution(net string, ev Resolution) error
}
