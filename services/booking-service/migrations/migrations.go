// Package migrations embeds the booking-service schema files.
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS
