// Package config loads process configuration from environment variables.
//
// Each component of the service declares its own struct with `env` tags
// (see adminsession.Config, pg.Config, totp.SealerConfig) and the main package
// fills them with Load. Values are parsed by github.com/caarlos0/env/v11; an
// optional .env file in the working directory is read first with
// github.com/joho/godotenv.
//
//	var sessions adminsession.Config
//	config.MustLoad(&sessions)
//
// Parsed values are cached per type. Tests that change the environment call
// ResetCache or Reload.
package config
