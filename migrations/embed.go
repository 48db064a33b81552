// Package migrations embeds the SQL schema for the execution history database.
package migrations

import (
	"embed"

	"github.com/nerrad567/showrunner/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
