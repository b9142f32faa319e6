// Package testutil provides test environments and fixtures.
//
// # Test Environment
//
// NewTestEnv wires an App to an in-memory forge (forge.MockProvider), an
// in-memory git (vcs.MockVCS) and a retry runner that never sleeps, and
// installs it as app.Default:
//
//	env := testutil.NewTestEnv(t)
//	defer env.Cleanup()
//
//	env.AddUpstream(octoApp, false)      // viewer cannot push: a fork is needed
//	env.AddForkRemote(octoApp, myFork)   // git side of the fork the run creates
//	env.AddIssue(7, "Crash on start")
//
// # Fixtures
//
// TOML config fixtures are embedded using go:embed:
//
//	fixtures/valid_config.toml
//	fixtures/invalid_config.toml
//
// Helper functions decode them over the defaults:
//
//	cfg, err := testutil.ValidConfig()
//	err := testutil.InvalidConfig()
//
// # Raw Fixture Access
//
//	data, err := testutil.LoadFixture("valid_config.toml")
package testutil
