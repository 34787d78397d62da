package config

import (
	"fmt"
)

// KeyInfo describes a config key for display purposes.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
	Secret bool
}

// ShowAll returns every config key with its current value. Secret values
// are masked.
func ShowAll(cfg Config) []KeyInfo {
	result := make([]KeyInfo, 0, len(specs))
	for _, s := range specs {
		val := fmt.Sprintf("%v", s.extract(cfg))
		if s.secret {
			val = mask(val)
		}
		result = append(result, KeyInfo{Key: s.key, EnvVar: s.env, Value: val, Secret: s.secret})
	}
	return result
}

func mask(v string) string {
	if v == "" {
		return "(unset)"
	}
	return "********"
}

// SetKey validates and writes key. Secrets go to the platform secret store,
// everything else to the config file.
func SetKey(key, value string) error {
	return setKeyIn(newFileBackend(configFilePath()), platformKeychain{}, key, value)
}

func setKeyIn(b ConfigBackend, kc keychain, key, value string) error {
	s, ok := lookupSpec(key)
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}
	if s.secret {
		return setSecret(kc, s, value)
	}
	v, err := s.parseValue(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	if s.typ == kInt {
		return b.SetInt(key, v.(int))
	}
	return b.SetString(key, value)
}

// IsSecret reports whether key names a secret.
func IsSecret(key string) bool {
	s, ok := lookupSpec(key)
	return ok && s.secret
}

// ValidKeys returns the names of all keys; secrets are marked.
func ValidKeys() []string {
	keys := make([]string, 0, len(specs))
	for _, s := range specs {
		if s.secret {
			keys = append(keys, s.key+" (secret)")
			continue
		}
		keys = append(keys, s.key)
	}
	return keys
}
