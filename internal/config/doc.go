// Package config provides configuration management for the Jarvis assistant.
//
// # Overview
//
// The config package uses Viper to load configuration from YAML files and
// environment variables. It provides a type-safe configuration structure with
// validation, default values, and automatic file creation.
//
// # Configuration File
//
// The configuration is stored at ~/.jarvis/config.yaml and is created with
// defaults on first use. An optional ~/.jarvis/.env is loaded first with
// LoadDotEnv, so OPENAI_API_KEY can seed the vault.
//
// # Environment Variables
//
// Every value can be overridden with a JARVIS_ environment variable. Nested
// fields are separated by underscores.
//
// Examples:
//   - JARVIS_AI_MODEL=gpt-4o
//   - JARVIS_QUOTA_LIMIT=120
//   - JARVIS_STORAGE_DRIVER=redis
//   - JARVIS_LOGGING_LEVEL=debug
//
// # Component Views
//
// GatewayConfig, ProviderConfig, QuotaLimits, Thresholds, StorageOptions and
// LoggerOptions translate the file layout into each package's own options.
package config
