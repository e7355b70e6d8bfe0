// Package git checks whether unlocked folders are exposed to version
// control.
//
// A temporarily unlocked folder holds plaintext. If it sits inside a
// git work tree and no ignore rule covers it, an ordinary commit would
// capture the contents. The checks here detect that situation so the
// status command can warn about it.
//
// All checks shell out to the git binary. When git is not installed
// every check reports no exposure.
package git
