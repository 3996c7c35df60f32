// Package storage persists castbot's audit journal: who scheduled,
// changed, cancelled or ran which broadcast, and how delivery went.
//
// Drivers:
//   - "file": append-only JSON Lines (<path stem>.audit.jsonl)
//   - "sqlite": a single SQLite database (modernc.org/sqlite, pure Go)
//
// An empty driver or "none" disables storage; Open then returns (nil, nil).
package storage
