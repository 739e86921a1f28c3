// Package domain contains the core entities and value objects for washline.
//
// This package represents the innermost layer of the application. It has no
// dependencies on infrastructure concerns (HTTP, database drivers, logging)
// and contains only records, their invariants and the error taxonomy.
//
// # Entities
//
//   - [Customer]: a laundry customer identified by a human-assigned code
//   - [Package]: a bundle of items received from a customer
//   - [Container]: a shipping container that packages are loaded into
//   - [StockItem]: a consumable tracked with a minimum threshold
//   - [Mutation]: a queued create/update/delete intent awaiting replay
//
// # Identifiers
//
// Rows created while the remote store is unreachable carry a temporary id
// (see [NewTempID] and [IsTempID]) until the sync coordinator remaps them to
// the server-issued id.
package domain
