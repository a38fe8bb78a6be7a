// Package handle implements the reference counted import/export handle model.
//
// A producer publishes an instance by exporting it; the registry wraps it in a
// Handle that carries producer attributes, a rank and a stable identity.
// Consumers see the same Handle through the Import interface:
//
//	v, err := imp.Get()      // acquire, counts one reference
//	if errors.Is(err, handle.ErrUnavailable) { ... }
//	defer imp.Unget()        // release
//
// Producers keep the Export side and may swap the instance (Put), clear it
// (Unput) or replace the metadata (SetAttributes). Swapping drains every
// acquisition still outstanding against the old delegate, so a replaced
// instance never leaks references.
//
// # Ordering
//
// Key combines rank and identity into the total order used by ranked sets:
// higher rank first, then ascending identity. Identities come from a
// Sequence; each Sequence owns a Space so identities from different sources
// never collide.
package handle
