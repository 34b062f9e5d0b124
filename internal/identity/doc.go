package identity

// Package identity resolves usernames to numeric uid/gid by parsing the
// passwd and group databases directly. rundird only ever needs the
// numbers: everything past this boundary works on uids alone.
