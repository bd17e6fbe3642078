// Package config provides configuration management for cohort-copilot.
//
// It utilizes Viper for loading configuration from environment variables and
// an optional .env file, with defaults taken from struct tags.
//
// # Configuration Structure
//
// The Config struct is the central repository for all application settings, divided into subsections:
//   - Server: HTTP server settings (host, port, API key)
//   - Supervisor: worker pool topology and request timeout
//   - Upstream: cohort preview API connection (base URL, cookie header, page size)
//   - OpenAI: query translator model and API key
//   - Storage: S3/MinIO credentials and the exports bucket
//   - Database: query history connection (mysql or sqlite)
//   - Log: logging level and format
//
// Environment variables map section.key to SECTION_KEY (UPSTREAM_API_BASE,
// SUPERVISOR_WORKERS, ...). The bare PORT variable is additionally bound to
// server.port and takes precedence, matching the container deployment
// contract.
//
// # Usage
//
//	cfg, err := config.LoadConfig(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Server.Port)
package config
