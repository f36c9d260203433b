package main

import (
	"context"
	"fmt"
	"syscall"

	"github.com/Strob0t/spacegate/internal/config"
	"github.com/Strob0t/spacegate/internal/secrets"
)

const (
	envJWTSecret         = "SPACEGATE_JWT_SECRET"
	envPreviousJWTSecret = "SPACEGATE_JWT_PREVIOUS_SECRET"
)

// openSigningKeys loads the session secrets into a vault that reloads on
// SIGHUP. Values from the config file are the fallback when neither the env
// var nor its _FILE variant is set.
func openSigningKeys(ctx context.Context, auth config.Auth) (*secrets.SigningKeys, error) {
	loader := secrets.EnvLoader(map[string]string{
		envJWTSecret:         auth.JWTSecret,
		envPreviousJWTSecret: auth.PreviousJWTSecret,
	}, envJWTSecret, envPreviousJWTSecret)

	vault, err := secrets.NewVault(loader, checkSigningKeys)
	if err != nil {
		return nil, err
	}
	vault.ReloadOn(ctx, syscall.SIGHUP)
	return secrets.NewSigningKeys(vault, envJWTSecret, envPreviousJWTSecret), nil
}

func checkSigningKeys(vals map[string]string) error {
	for _, k := range []string{envJWTSecret, envPreviousJWTSecret} {
		if v := vals[k]; v != "" && len(v) < config.MinSecretLen {
			return fmt.Errorf("%s must be at least %d bytes", k, config.MinSecretLen)
		}
	}
	if vals[envJWTSecret] == "" {
		return fmt.Errorf("%s is required", envJWTSecret)
	}
	return nil
}
