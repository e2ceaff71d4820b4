package commands

import (
	"database/sql"

	"github.com/teranos/rpawatch/am"
	"github.com/teranos/rpawatch/db"
	"github.com/teranos/rpawatch/errors"
	"github.com/teranos/rpawatch/logger"
)

// dbPathFlag overrides database.path for every command that opens the database
var dbPathFlag string

// openDatabase opens and migrates the configured database, or dbPathFlag
// when set.
func openDatabase() (*sql.DB, string, error) {
	path := dbPathFlag
	if path == "" {
		cfg, err := am.Load()
		if err != nil {
			return nil, "", errors.Wrap(err, "failed to load configuration")
		}
		path = cfg.GetDatabasePath()
	}

	database, err := db.OpenWithMigrations(path, logger.Logger)
	if err != nil {
		return nil, "", errors.Wrapf(err, "failed to open database at %s", path)
	}
	return database, path, nil
}
