package testutil

import (
	"embed"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/config"
)

//go:embed fixtures/*.toml
var fixturesFS embed.FS

// LoadFixture loads a fixture file by name.
func LoadFixture(name string) ([]byte, error) {
	return fixturesFS.ReadFile("fixtures/" + name)
}

// LoadConfigFixture decodes a TOML config fixture over the defaults.
func LoadConfigFixture(name string) (*config.Config, error) {
	data, err := LoadFixture(name)
	if err != nil {
		return nil, err
	}
	return config.Parse(string(data))
}

// ValidConfig returns the valid config fixture.
func ValidConfig() (*config.Config, error) {
	return LoadConfigFixture("valid_config.toml")
}

// InvalidConfig returns the error from decoding the invalid config fixture.
func InvalidConfig() error {
	_, err := LoadConfigFixture("invalid_config.toml")
	return err
}
