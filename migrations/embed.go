// Package migrations embeds SQL migration files into the binary.
//
// The autopilot runs migrations without needing the SQL files present on the
// filesystem; they are compiled into the executable.
package migrations

import (
	"embed"

	"github.com/nerrad567/macro-autopilot/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	// Register embedded migrations with the database package.
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
