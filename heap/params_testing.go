//go:build test

package heap

// verifyCommits enables reading back every committed range from the store.
const verifyCommits = true
