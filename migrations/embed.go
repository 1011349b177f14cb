// Package migrations embeds SQL migration files into the binary.
//
// The node runs from read-only images; the SQL files are compiled into
// the executable rather than shipped alongside it.
package migrations

import (
	"embed"

	"github.com/nerrad567/gray-logic-node/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
