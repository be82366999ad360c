// Package config loads the dwiflow application configuration.
//
// Values come from, in increasing precedence: built-in defaults, a YAML file
// (dwiflow.yml or config.yml in the working directory, ./config or the user
// config directory), a .env file, and DWIFLOW_-prefixed environment variables.
// Nested keys are addressed with underscores, so DWIFLOW_PIPELINE_LOG_DIR sets
// pipeline.log_dir.
//
// # Usage
//
//	var cfg config.Config
//	if err := config.LoadConfig("dwiflow", &cfg, config.WithConfigFile(path)); err != nil {
//	    return err
//	}
//	cfg.ApplyDefaults()
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
//
// The loaded Config is passed by reference to the components that need it;
// there is no package-level configuration state.
package config
