package store

import "time"

// User contains the fields of a credential row. SignerID is assigned by the store at
// insert time and keys the HD wallet derivation of the user's on-chain account.
type User struct {
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
	SignerID     uint32 `json:"signerId"`
}

// Registration intent states. An intent is written before the ledger is touched and
// removed once the credential row exists, so any surviving intent marks a registration
// that stopped halfway.
const (
	IntentPending    = 0 // ledger submission not confirmed yet
	IntentLedgerDone = 1 // ledger has the identity, local row still missing
)

// RegIntent contains the fields of a two-phase registration intent. The password hash
// is carried so the reconciler can complete the local insert without the password.
type RegIntent struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	State        int       `json:"state"`
	Updated      time.Time `json:"updated"`
}
