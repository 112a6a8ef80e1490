package sqlassets

import _ "embed"

//go:embed schema/platform/users.sql
var UsersSQL string

//go:embed schema/platform/churches.sql
var ChurchesSQL string

//go:embed schema/platform/memberships.sql
var MembershipsSQL string

//go:embed schema/platform/sessions.sql
var SessionsSQL string

//go:embed schema/platform/crm.sql
var CrmSQL string

// All returns the platform DDL in dependency order. Tests and init scripts
// apply these statements against a fresh database.
func All() []string {
	return []string{
		UsersSQL,
		ChurchesSQL,
		MembershipsSQL,
		SessionsSQL,
		CrmSQL,
	}
}
