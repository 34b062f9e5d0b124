package counter

// Package counter implements the on-disk session reference count.
//
// Each tracked uid has one counter file holding the number of live
// sessions as ASCII decimal. The file is mutated only under an exclusive
// flock, and a single "-" byte marks a counter whose content can no
// longer be trusted (readers treat it as zero, not as an error).
