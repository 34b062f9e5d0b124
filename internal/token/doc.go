package token

// Package token issues capability tokens proving that an acquire
// succeeded. Release demands the token back: a close call without one
// never touches the counter.
