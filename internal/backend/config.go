package backend

import (
	"errors"
	"fmt"
	"strings"

	"cuentas/internal/config"
)

// FromAppConfig picks the persistence settings out of the application config.
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, errors.New("app config is nil")
	}

	c := Config{
		Type:         BackendType(strings.ToLower(strings.TrimSpace(appConfig.DataBackend))),
		SQLiteDBPath: strings.TrimSpace(appConfig.SQLiteDBPath),
	}
	if !c.Type.IsValid() {
		return Config{}, fmt.Errorf("unknown data backend %q, expected one of %v", appConfig.DataBackend, GetBackendTypes())
	}
	return c, nil
}

func (c Config) Validate() error {
	switch c.Type {
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return errors.New("sqlite backend needs a database path")
		}
	case MemoryBackend:
	default:
		return fmt.Errorf("unknown data backend %q", c.Type)
	}
	return nil
}

// GetBackendTypes lists the supported backends.
func GetBackendTypes() []BackendType {
	return []BackendType{MemoryBackend, SQLiteBackend}
}
