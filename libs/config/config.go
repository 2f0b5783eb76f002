package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/ilyakaznacheev/cleanenv"
)

// String returns the value of key, or fallback when it is unset or empty.
func String(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func ValidatePort(key, v string) error {
	p, err := strconv.Atoi(v)
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("%s must be a valid TCP port (got %q)", key, v)
	}
	return nil
}

// Load fills dst (a pointer to a struct tagged with env/env-default/env-required)
// from the process environment.
func Load(dst any) error {
	if err := cleanenv.ReadEnv(dst); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
