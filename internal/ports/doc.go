// Package ports defines the interfaces (ports) that connect the application
// layer to infrastructure adapters.
//
// # Port Interfaces
//
//   - [RemoteStore]: select/insert/update/delete against named collections
//   - [Pinger]: cheap reachability check used by the connectivity probe
//   - [KVStore]: durable local key-value persistence for caches and the queue
//   - [Connectivity]: online/offline transitions with subscription handles
//   - [PermissionGate]: capability check consulted before every write
//   - [AuthNotifier]: session change subscription
//   - [HTTPClient]: HTTP request abstraction for dependency injection
//   - [Logger]: structured logging abstraction
//
// The application layer (internal/app) depends only on these interfaces.
// Infrastructure adapters (internal/adapters) implement them.
package ports
