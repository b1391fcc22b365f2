package store

import (
	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// driverNames maps backend names to database/sql driver names.
var driverNames = map[string]string{
	BackendSQLite:     "sqlite",
	BackendDolt:       "dolt",
	BackendDoltServer: "mysql",
}
