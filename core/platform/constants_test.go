package platform_test

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/stokaro/schemasync/core/platform"
)

func TestNormalizeDialect(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"pgx", platform.Postgres},
		{"PostgreSQL", platform.Postgres},
		{"postgres", platform.Postgres},
		{"mysql", platform.MySQL},
		{"MariaDB", platform.MariaDB},
		{"sqlite", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			c := qt.New(t)
			c.Assert(platform.NormalizeDialect(tt.input), qt.Equals, tt.expected)
		})
	}
}

func TestDialectFromURL(t *testing.T) {
	c := qt.New(t)

	c.Assert(platform.DialectFromURL("postgres://u:p@localhost/db"), qt.Equals, platform.Postgres)
	c.Assert(platform.DialectFromURL("postgresql://localhost/db"), qt.Equals, platform.Postgres)
	c.Assert(platform.DialectFromURL("mysql://root@tcp(localhost:3306)/db"), qt.Equals, platform.MySQL)
	c.Assert(platform.DialectFromURL("localhost/db"), qt.Equals, "")
	c.Assert(platform.IsMySQLFamily(platform.MariaDB), qt.IsTrue)
	c.Assert(platform.IsMySQLFamily(platform.Postgres), qt.IsFalse)
}
