package fsutil

// Package fsutil provides serialized, atomic file helpers for the small
// state files rundird keeps (config, leases, journal).
//
// The runtime directory protocol itself does not use these: its counter
// format is deliberately mutated in place under an flock.
