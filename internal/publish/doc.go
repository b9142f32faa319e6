// Package publish turns a prepared task branch into a verified pull request.
//
// A Publisher walks a fixed state machine:
//
//	STAGING -> COMMITTED -> PUSHED -> SYNCING -> CREATING -> VERIFYING -> LINKED | LINK_WARNED
//
// Any failing step aborts the run with a typed error from internal/errors.
// A pull request is never created while the provider's comparison endpoint
// reports the head zero commits ahead of base, and a pull request is only
// reported after it has been read back by number.
//
// Linking is advisory: when the provider does not show the issue as closed
// by the pull request, the run still succeeds in LINK_WARNED with the
// command that fixes it.
package publish
