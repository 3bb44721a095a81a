// Package db holds the schema migrations compiled into the binary.
package db

import "embed"

// MigrationsDir is the directory of Migrations that holds the goose files.
const MigrationsDir = "migrations"

//go:embed migrations/*.sql
var Migrations embed.FS
