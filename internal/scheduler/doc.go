// Package scheduler converges the connection pool on the database.
//
// Every poll interval it lists the enabled agent records, pushes each
// one through the pool's Update path, and stops any running bot whose
// record disappeared or was disabled. Errors within a cycle are logged
// and the loop carries on; the database is the source of truth and the
// next cycle retries.
package scheduler
