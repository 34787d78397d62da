package config

import (
	"fmt"
	"strings"
)

// keychainService is the service name every secret is stored under. The
// account is the config key, e.g. "mail.password".
const keychainService = "outreach"

// keychain abstracts the platform secret store for testing.
type keychain interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
}

// platformKeychain is the macOS Keychain on darwin and a 0600 JSON file
// under $XDG_DATA_HOME/outreach elsewhere.
type platformKeychain struct{}

func (platformKeychain) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (platformKeychain) Set(service, account, value string) error {
	return keychainSet(service, account, value)
}

// applyKeychain fills secrets still empty after the environment from kc.
// Lookup failures mean "not stored" and are not reported.
func applyKeychain(cfg *Config, kc keychain) {
	for _, s := range specs {
		if !s.secret {
			continue
		}
		if v, _ := s.extract(*cfg).(string); v != "" {
			continue
		}
		if v, err := kc.Get(keychainService, s.key); err == nil && v != "" {
			s.apply(cfg, v)
		}
	}
}

func setSecret(kc keychain, s keySpec, value string) error {
	if value == "" {
		return fmt.Errorf("empty value for secret %s", s.key)
	}
	if err := kc.Set(keychainService, s.key, value); err != nil {
		return fmt.Errorf("storing %s in %s: %w", s.key, secretStoreName(), err)
	}
	return nil
}
