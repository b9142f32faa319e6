// Package workspace prepares the ephemeral working copy a run operates in.
//
// # Manager
//
// Manager allocates one directory per run under the workspace root, named
// <owner>-<repo>-<issue>-<runID>. The directory is created with os.Mkdir so
// two runs can never share it. Release removes it after a successful run
// unless retention was requested, and always keeps it after a failure so it
// can be inspected or resumed.
//
// # Cloner
//
// Cloner clones the chosen repository (fork or original) into the
// workspace and makes sure an origin remote exists, adding it explicitly
// when the clone did not record one.
//
// # UpstreamSyncer
//
// UpstreamSyncer aligns a fork's default branch with upstream:
//
//	git remote add upstream <url>    # reused if present
//	git fetch upstream
//	git checkout <default>
//	git reset --hard upstream/<default>
//	git push origin <default>
//
// A non-fast-forward rejection is fatal unless force-with-lease is enabled,
// in which case the push is retried once with a lease on the sha just
// fetched from origin.
//
// # BranchManager
//
// BranchManager creates issue-<n>-<hex> branches or checks out existing ones,
// then re-reads the current branch to verify the checkout landed where it
// was asked to.
package workspace
