package cmd

import (
	"context"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/app"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/config"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/forge"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/logging"
)

// Helper aliases for user-facing output (delegates to logging package)
var (
	logInfo    = logging.UserInfo
	logSuccess = logging.UserSuccess
	logWarning = logging.UserWarning
)

// paths returns the default paths configuration.
func paths() *config.Paths {
	return app.Default.Paths
}

// currentConfig returns the configuration loaded by the root command.
func currentConfig() *config.Config {
	cfg, err := app.Default.LoadConfig(configPath)
	if err != nil || cfg == nil {
		return config.Default()
	}
	return cfg
}

// parseRepo parses an owner/name argument or returns a ValidationError.
func parseRepo(s string) (forge.Repo, error) {
	repo, err := forge.ParseRepo(s)
	if err != nil {
		return forge.Repo{}, errors.ValidationError(err.Error())
	}
	return repo, nil
}

// currentUser returns the authenticated forge account.
func currentUser(ctx context.Context) (string, error) {
	user, err := app.Default.Forge().CurrentUser(ctx)
	if err != nil {
		return "", errors.PermissionDenied("determine the authenticated user", err).
			WithCommand(currentConfig().Provider.GH, "auth", "status")
	}
	return user, nil
}
