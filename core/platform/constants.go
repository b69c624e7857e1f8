// Package platform names the database dialects the reconciler can drive.
package platform

import (
	"strings"
)

const (
	Postgres = "postgres"
	MySQL    = "mysql"
	MariaDB  = "mariadb"
)

// NormalizeDialect maps driver and URL scheme aliases onto a dialect constant.
// It returns an empty string for unsupported dialects.
func NormalizeDialect(dialect string) string {
	switch strings.ToLower(dialect) {
	case "pgx", "postgresql", "postgres":
		return Postgres
	case "mysql":
		return MySQL
	case "mariadb":
		return MariaDB
	default:
		return ""
	}
}

// DialectFromURL returns the dialect selected by the scheme of a database URL.
func DialectFromURL(dbURL string) string {
	scheme, _, ok := strings.Cut(dbURL, "://")
	if !ok {
		return ""
	}
	return NormalizeDialect(scheme)
}

// IsMySQLFamily reports whether the dialect speaks the MySQL protocol and DDL.
func IsMySQLFamily(dialect string) bool {
	return dialect == MySQL || dialect == MariaDB
}
