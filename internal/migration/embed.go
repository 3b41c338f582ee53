package migration

import "embed"

// Migrations ship inside the binary so a deploy can never run against a
// schema it does not carry.
//
//go:embed migrations/*.up.sql
var migrationFS embed.FS

const sourceDir = "migrations"
