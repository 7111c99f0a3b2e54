// Package session holds the in-memory state for every bridged WhatsApp
// session: one Record per session id, owned by a single Registry.
//
// Invariants:
// - At most one live transport handle per record.
// - A non-empty pairing code implies StatePairingReady.
// - A non-empty identity implies StateConnected.
// - The reconnect guard is a try-acquire token; it is held for the whole
//   duration of one connection attempt and released on every exit path.
//
// Records are mutated only through the narrow methods below, never by
// reaching into fields. The connection supervisor drives the state
// machine; the evictor and deletion paths only tear down.
package session
