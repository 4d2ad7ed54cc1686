// Package store persists agent records, the declarative desired state of
// the fleet.
//
// An AgentRecord describes one bot: its homeserver, access token, enabled
// flag, response settings, and behavior configuration. The reconciliation
// scheduler reads enabled records each cycle and converges the connection
// pool onto them; nothing in the runtime ever writes records except the
// bot-identity write-back after a successful connect.
//
// Two implementations are provided behind the Store interface:
//
//   - SQLiteStore (modernc.org/sqlite) for single-node deployments
//   - PostgresStore (jackc/pgx) for deployments with a shared database
//
// Whitelists and agent configuration are stored as JSON columns so the
// behavior surface can grow without schema migrations.
package store
