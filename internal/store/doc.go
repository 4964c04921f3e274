// Package store executes rendered report statements against a SQL database.
//
// The store wraps sqlx over one of two drivers:
//   - sqlite3 (github.com/mattn/go-sqlite3), the default
//   - postgres (github.com/lib/pq)
//
// Statements arrive as queryir trees and are rendered with the dialect that
// matches the driver, so the same view can run on either database.
//
// # Database Configuration (SQLite)
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//   - a single open connection, which also keeps in-memory databases alive
//
// # Fixtures
//
// LoadFixtures creates tables and inserts rows from a YAML document:
//
//	tables:
//	  - name: client
//	    columns:
//	      - {name: id, type: integer, primary: true}
//	      - {name: name, type: text}
//	    rows:
//	      - [1, Vinny]
//
// Rows are returned as column → value maps, exactly as the driver produced
// them; typecasting is left to the caller.
package store
