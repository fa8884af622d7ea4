// Package migrations embeds the SQL schema migrations so the migrate
// command can run without shipping loose files.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
