// Package bridge and its sub-packages implement the backend services that keep the agrimart
// marketplace database and its on-chain wallet contract in sync.
/*
bridge provides you with two microservices:

1) a market microservice (package market) that implements a RESTful API for identity
 registration, fund deposits and fund transfers. Every registration is written to the
 ledger first and to the local credential store second, so a user is only fully
 registered when both records exist.

2) a reconciler microservice (package reconciler) that repairs registrations which
 failed halfway between the ledger and the credential store.

Architecture

The market and reconciler services communicate via a message broker. When a dual write
fails after the ledger transaction was confirmed, the market service publishes a
reconcile request to the broker. The reconciler consumes these requests and also sweeps
the registration intents persisted in the store, completing or discarding each one
against the ledger's authoritative identity record. The message broker is implemented
as a product agnostic layer (package lib/msg) and is configured via a JSON config file
at service startup.

Both services share a database layer (package lib/store) providing a product agnostic
interface with PostgreSQL and MongoDB implementations. The store persists credential
rows and the two-phase registration intents used for crash recovery.

A ledger layer (package lib/block) translates coordinator calls into calls against the
marketplace wallet contract. Submissions are signed with explicit per-request signers
derived from an HD wallet; there is no process-wide ambient account. All waits for
transaction finality are bounded.

The microservices can be monitored via a Prometheus API by setting the flag "-m" at
startup.
*/
package bridge
