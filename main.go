package main

import (
	"os"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/cmd"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/logging"
)

func main() {
	if err := cmd.Execute(); err != nil {
		logging.UserError("%v", err)
		logging.UserHint(errors.GetRemediation(err)...)
		os.Exit(errors.GetExitCode(err))
	}
}
