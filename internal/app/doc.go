// Package app provides the application context for forage-pr.
//
// This package manages application-wide dependencies using the functional
// options pattern, enabling easy testing through dependency injection.
//
// # App Context
//
// The App struct holds core dependencies:
//
//	type App struct {
//	    Paths    *config.Paths           // File system paths
//	    Config   *config.Config          // Loaded configuration
//	    Executor system.CommandExecutor  // Runs gh, git and the agent
//	    Provider forge.Provider          // Hosting provider
//	    VCS      vcs.VCS                 // Local git operations
//	    Runner   *retry.Runner           // Retry loops
//	}
//
// Provider and VCS are built from Config.Provider on first use unless they
// were injected.
//
// # Creating an App
//
// Use New with functional options:
//
//	// Production usage
//	a := app.New()
//	cfg, err := a.LoadConfig("")
//
//	// Testing with custom dependencies
//	a := app.New(
//	    app.WithPaths(testPaths),
//	    app.WithConfig(config.Default()),
//	    app.WithProvider(forge.NewMockProvider("me")),
//	    app.WithVCS(vcs.NewMockVCS()),
//	)
//
// # Available Options
//
//	WithPaths(paths)       // Custom path configuration
//	WithConfig(cfg)        // Skip the config file
//	WithExecutor(exec)     // Custom command executor
//	WithProvider(p)        // Custom forge provider
//	WithVCS(v)             // Custom VCS
//	WithRunner(r)          // Custom retry runner (tests use an immediate timer)
package app
