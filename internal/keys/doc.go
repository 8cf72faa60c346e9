// Package keys implements the license key lifecycle for keyforge.
//
// A Manager owns every state transition of a key:
//
//	Unbound --Bind--> Bound --ResetHWID--> Unbound
//	any     --Revoke--> Revoked (active=false, record kept)
//	any     --Delete--> removed
//
// Each operation runs inside one critical section provided by a Locker:
// the whole collection is loaded from the Store, one transition is applied,
// and the collection is saved back before success is reported. Operations
// that change nothing (a lookup miss, an idempotent bind, a repeated revoke)
// never call Save.
//
// Temporary keys carry an expiry. ExpireDue deactivates them once due and
// Cleanup removes them from the collection.
package keys
