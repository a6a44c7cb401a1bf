package sqlstore

import (
	"fmt"

	"visit-recorder/internal/domain"

	"github.com/go-sql-driver/mysql"
)

// dialect captures what differs between the database/sql backends
type dialect struct {
	name        string
	driver      string
	createTable string
	// unboundedLimit is the LIMIT value meaning "every remaining row"
	unboundedLimit string
	// singleConn serializes access; sqlite allows one writer at a time
	singleConn bool
}

var dialects = map[string]dialect{
	"sqlite": {
		name:   "sqlite",
		driver: "sqlite",
		createTable: `
			CREATE TABLE IF NOT EXISTS visiteurs (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				ip TEXT,
				langue TEXT,
				navigateur TEXT,
				appareil TEXT,
				fuseau TEXT,
				date_access TEXT
			)`,
		unboundedLimit: "-1",
		singleConn:     true,
	},
	"mysql": {
		name:   "mysql",
		driver: "mysql",
		createTable: `
			CREATE TABLE IF NOT EXISTS visiteurs (
				id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
				ip VARCHAR(45),
				langue VARCHAR(255),
				navigateur TEXT,
				appareil VARCHAR(255),
				fuseau VARCHAR(255),
				date_access VARCHAR(64)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		unboundedLimit: "18446744073709551615",
	},
}

func lookupDialect(backend string) (dialect, error) {
	d, ok := dialects[backend]
	if !ok {
		return dialect{}, fmt.Errorf("%w: %q", domain.ErrInvalidBackend, backend)
	}
	return d, nil
}

// normalizeDSN validates backend specific DSN details before the pool is opened
func normalizeDSN(d dialect, dsn string) (string, error) {
	if d.name != "mysql" {
		return dsn, nil
	}

	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid mysql dsn: %w", err)
	}
	if cfg.Params == nil {
		cfg.Params = map[string]string{}
	}
	if _, ok := cfg.Params["charset"]; !ok {
		cfg.Params["charset"] = "utf8mb4"
	}
	return cfg.FormatDSN(), nil
}
