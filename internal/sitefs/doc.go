// Package sitefs is a sandboxed file-access gateway. A Registry maps site
// names to root directories; every request is resolved against one site and
// must stay inside its root.
//
// Request flow:
//
//	Registry.Lookup -> Resolve -> Probe -> List | Open | Delete
//	Registry.Lookup -> Resolve -> Write (probes inline)
//
// Containment is decided lexically before any filesystem access: the raw
// relative path may not contain "/.." (after assuming a leading slash), may
// not contain NUL or backslash, and the joined path must stay below the root.
// Symlinks inside a root are followed by the status probe. Links that point
// outside the root are an operator decision and are not policed here.
//
// Probe-then-act is not atomic. A target can change between the status
// probe and the action; the operations tolerate that where it matters
// (Delete of a vanished target succeeds, Open re-checks the opened handle)
// and otherwise surface whatever the filesystem reports.
//
// All failures are *Error values. Match them with errors.Is against
// ErrBadRequest, ErrNotFound, ErrInternal, ErrSiteNotFound and
// ErrMissingParameter; Reason returns the caller-facing message.
package sitefs
