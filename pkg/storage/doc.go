// Package storage opens and migrates the identity database.
//
// PostgreSQL is the production backend; SQLite is supported for local
// development and single-host deployments. Both are reached through
// database/sql so the stores in pkg/user, pkg/group, pkg/artefact and
// pkg/view stay backend-agnostic.
package storage
