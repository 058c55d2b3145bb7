// Package migrations embeds the SQL schema migrations for each supported
// database. Each dialect lives in its own directory.
package migrations

import "embed"

//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS
