// Package migrations embeds the postgres backend's schema migrations for
// golang-migrate's iofs source driver.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
