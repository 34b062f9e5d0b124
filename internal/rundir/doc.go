package rundir

// Package rundir manages per-user ephemeral runtime directories.
//
// A directory under the shared parent (e.g. /run/users/1000) exists while
// at least one session for that uid is open. Session counts live in a
// sibling counter file (/run/users/.1000) mutated only under its
// exclusive lock, so concurrent logins and logouts across processes
// agree on when the directory must be created and when it must go.
