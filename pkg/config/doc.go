// Package config loads typed configuration from the environment.
//
// A `.env` file in the working directory is read once (a missing file is not
// an error), then each struct type is parsed with caarlos0/env tags and cached
// for the life of the process:
//
//	type PaddleConfig struct {
//		APIKey string `env:"PADDLE_API_KEY,required"`
//	}
//
//	var cfg PaddleConfig
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
//
// Types implementing Validator are checked after parsing, which is where
// conditional secrets (required only when a provider is enabled) are enforced.
package config
