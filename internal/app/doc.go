// Package app composes the vault service into a running application.
//
// # Architecture Role
//
// The app package sits above the ledger core and is responsible for wiring it
// to storage, events and background workers. It is NOT a business logic
// layer - the vault rules live in internal/vault and the operation flow in
// internal/app/services/vault.
//
// # Package Structure
//
//	internal/app/
//	├── application.go      # Application struct, wiring, and lifecycle
//	├── domain/             # Domain models (pure data structures)
//	│   └── vault/          # Persisted account and journal rows
//	├── storage/            # Storage interfaces and implementations
//	│   ├── interfaces.go   # VaultStore and JournalStore
//	│   ├── memory/         # In-memory implementation for testing
//	│   ├── postgres/       # PostgreSQL implementation for production
//	│   └── rediscache/     # Optional read-through cache
//	├── services/
//	│   └── vault/          # Deposit/withdraw orchestration and the auditor
//	├── httpapi/            # REST handlers, websocket feed, audit trail
//	├── system/             # Service lifecycle management
//	└── metrics/            # Prometheus collectors
//
// # Dependency Direction
//
//	cmd/vaultd
//	      │
//	      ▼
//	internal/app/runtime (config, database, chain wiring)
//	      │
//	      ▼
//	internal/app (composition)
//	      │
//	      ├──► internal/app/services/vault (operation flow)
//	      │           │
//	      │           └──► internal/vault (ledger rules)
//	      │
//	      ├──► internal/app/storage (projections)
//	      │
//	      └──► internal/chain (Neo N3 payouts)
//
// The ledger in internal/vault stays authoritative while the process runs;
// storage holds projections for restarts and reconciliation.
package app
