// Package enhance manages image enhancement sessions.
//
// A Session holds one selected image: an immutable original buffer captured
// at load time and a working buffer that filters mutate in place. A Manager
// owns at most one active session and moves it through its lifecycle:
//
//	Select  -> decode source, create session (replacing any previous one)
//	Apply   -> run a filter on the working buffer (0..N times)
//	Reset   -> copy the original back over the working buffer
//	Save    -> encode working as JPEG, submit it, swap the displayed reference
//
// A successful Save terminates the session; the target's displayed reference
// then points at the saved encoding with a cache-busting marker, and selecting
// the target again starts a fresh session from it.
//
// Save is the only operation that suspends. The Manager releases its lock for
// the network round trip and, when the reply arrives, applies it only if the
// issuing session is still the active one. Replies for replaced sessions are
// stale and dropped with ErrStaleResponse.
package enhance
