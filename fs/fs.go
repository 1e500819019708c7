package appfs

import "embed"

// FS holds the SQL migrations (one directory per dialect) and the email templates.
// Partial templates start with "_", hence all:.
//go:embed migrations all:templates
var FS embed.FS
