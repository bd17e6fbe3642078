// Package database handles the optional query history database connection.
//
// It wraps GORM connection setup for MySQL (the default) and SQLite (useful
// for single-host deployments and tests). Connect is agnostic to the schema;
// feature packages own their models and migrations.
//
// # Usage
//
//	db, err := database.Connect(cfg.Database)
//	if err != nil {
//	    log.Warn("Database unavailable, query history disabled", zap.Error(err))
//	}
package database
