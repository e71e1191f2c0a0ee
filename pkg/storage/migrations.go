package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all identity schema migrations.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create institution table",
			SQL: `
				CREATE TABLE IF NOT EXISTS institution (
					name VARCHAR(255) PRIMARY KEY,
					display_name VARCHAR(255) NOT NULL,
					theme VARCHAR(255),
					suspended BOOLEAN NOT NULL DEFAULT FALSE,
					register_allowed BOOLEAN NOT NULL DEFAULT TRUE,
					default_quota BIGINT
				);
			`,
		},
		{
			Version:     2,
			Description: "Create auth_instance table",
			SQL: `
				CREATE TABLE IF NOT EXISTS auth_instance (
					id BIGSERIAL PRIMARY KEY,
					instance_name VARCHAR(255) NOT NULL,
					auth_type VARCHAR(64) NOT NULL,
					institution VARCHAR(255) NOT NULL REFERENCES institution(name),
					parent_id BIGINT REFERENCES auth_instance(id) ON DELETE SET NULL,
					active BOOLEAN NOT NULL DEFAULT TRUE,
					login_message TEXT
				);

				CREATE INDEX idx_auth_instance_institution ON auth_instance(institution);
			`,
		},
		{
			Version:     3,
			Description: "Create usr table",
			SQL: `
				CREATE TABLE IF NOT EXISTS usr (
					id BIGSERIAL PRIMARY KEY,
					username VARCHAR(255) NOT NULL UNIQUE,
					password VARCHAR(255) NOT NULL DEFAULT '',
					salt VARCHAR(255) NOT NULL DEFAULT '',
					email VARCHAR(255) NOT NULL DEFAULT '',
					first_name VARCHAR(255) NOT NULL DEFAULT '',
					last_name VARCHAR(255) NOT NULL DEFAULT '',
					preferred_name VARCHAR(255) NOT NULL DEFAULT '',
					admin BOOLEAN NOT NULL DEFAULT FALSE,
					staff BOOLEAN NOT NULL DEFAULT FALSE,
					active BOOLEAN NOT NULL DEFAULT TRUE,
					deleted BOOLEAN NOT NULL DEFAULT FALSE,
					suspended_at TIMESTAMP,
					suspended_reason TEXT,
					expiry TIMESTAMP,
					expiry_mail_sent BOOLEAN NOT NULL DEFAULT FALSE,
					last_login TIMESTAMP,
					last_last_login TIMESTAMP,
					last_access TIMESTAMP,
					login_tries INT NOT NULL DEFAULT 0,
					quota BIGINT,
					quota_used BIGINT NOT NULL DEFAULT 0,
					unread INT NOT NULL DEFAULT 0,
					auth_instance_id BIGINT REFERENCES auth_instance(id),
					url_id VARCHAR(255) UNIQUE,
					theme VARCHAR(255),
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_usr_username ON usr(username);
				CREATE INDEX idx_usr_auth_instance ON usr(auth_instance_id);
			`,
		},
		{
			Version:     4,
			Description: "Create remote username mapping",
			SQL: `
				CREATE TABLE IF NOT EXISTS auth_remote_user (
					auth_instance_id BIGINT NOT NULL REFERENCES auth_instance(id) ON DELETE CASCADE,
					remote_username VARCHAR(255) NOT NULL,
					local_usr BIGINT NOT NULL REFERENCES usr(id) ON DELETE CASCADE,
					PRIMARY KEY (auth_instance_id, remote_username)
				);
			`,
		},
		{
			Version:     5,
			Description: "Create mobile token table",
			SQL: `
				CREATE TABLE IF NOT EXISTS usr_mobile_token (
					token VARCHAR(255) PRIMARY KEY,
					usr BIGINT NOT NULL REFERENCES usr(id) ON DELETE CASCADE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);
			`,
		},
		{
			Version:     6,
			Description: "Create institution membership table",
			SQL: `
				CREATE TABLE IF NOT EXISTS usr_institution (
					usr BIGINT NOT NULL REFERENCES usr(id) ON DELETE CASCADE,
					institution VARCHAR(255) NOT NULL REFERENCES institution(name) ON DELETE CASCADE,
					admin BOOLEAN NOT NULL DEFAULT FALSE,
					staff BOOLEAN NOT NULL DEFAULT FALSE,
					theme VARCHAR(255),
					joined_at TIMESTAMP NOT NULL DEFAULT NOW(),
					PRIMARY KEY (usr, institution)
				);

				CREATE INDEX idx_usr_institution_institution ON usr_institution(institution);
			`,
		},
		{
			Version:     7,
			Description: "Create group tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS folio_group (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL UNIQUE,
					group_type VARCHAR(64) NOT NULL DEFAULT 'standard',
					institution VARCHAR(255) REFERENCES institution(name),
					edit_roles VARCHAR(32) NOT NULL DEFAULT 'all',
					edit_window_start TIMESTAMP,
					edit_window_end TIMESTAMP,
					deleted BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS group_member (
					group_id BIGINT NOT NULL REFERENCES folio_group(id) ON DELETE CASCADE,
					member BIGINT NOT NULL REFERENCES usr(id) ON DELETE CASCADE,
					role VARCHAR(32) NOT NULL,
					joined_at TIMESTAMP NOT NULL DEFAULT NOW(),
					PRIMARY KEY (group_id, member)
				);

				CREATE INDEX idx_group_member_member ON group_member(member);
				CREATE INDEX idx_group_member_role ON group_member(group_id, role);
			`,
		},
		{
			Version:     8,
			Description: "Create artefact tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS artefact (
					id BIGSERIAL PRIMARY KEY,
					artefact_type VARCHAR(64) NOT NULL,
					title VARCHAR(255) NOT NULL DEFAULT '',
					owner BIGINT REFERENCES usr(id) ON DELETE CASCADE,
					group_id BIGINT REFERENCES folio_group(id) ON DELETE CASCADE,
					institution VARCHAR(255) REFERENCES institution(name) ON DELETE CASCADE,
					author BIGINT REFERENCES usr(id) ON DELETE SET NULL,
					parent BIGINT REFERENCES artefact(id) ON DELETE CASCADE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_artefact_parent ON artefact(parent);
				CREATE INDEX idx_artefact_owner ON artefact(owner);
				CREATE INDEX idx_artefact_institution_type ON artefact(institution, artefact_type);

				CREATE TABLE IF NOT EXISTS artefact_access_role (
					artefact BIGINT NOT NULL REFERENCES artefact(id) ON DELETE CASCADE,
					role VARCHAR(32) NOT NULL,
					can_view BOOLEAN NOT NULL DEFAULT FALSE,
					can_edit BOOLEAN NOT NULL DEFAULT FALSE,
					can_republish BOOLEAN NOT NULL DEFAULT FALSE,
					PRIMARY KEY (artefact, role)
				);

				CREATE TABLE IF NOT EXISTS artefact_access_usr (
					artefact BIGINT NOT NULL REFERENCES artefact(id) ON DELETE CASCADE,
					usr BIGINT NOT NULL REFERENCES usr(id) ON DELETE CASCADE,
					can_view BOOLEAN NOT NULL DEFAULT FALSE,
					PRIMARY KEY (artefact, usr)
				);
			`,
		},
		{
			Version:     9,
			Description: "Create view, collection and archive tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS view (
					id BIGSERIAL PRIMARY KEY,
					title VARCHAR(255) NOT NULL DEFAULT '',
					view_type VARCHAR(64) NOT NULL DEFAULT 'portfolio',
					owner BIGINT REFERENCES usr(id) ON DELETE CASCADE,
					group_id BIGINT REFERENCES folio_group(id) ON DELETE CASCADE,
					institution VARCHAR(255) REFERENCES institution(name) ON DELETE CASCADE,
					locked BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_view_owner_type ON view(owner, view_type);

				CREATE TABLE IF NOT EXISTS collection (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL DEFAULT '',
					owner BIGINT REFERENCES usr(id) ON DELETE CASCADE,
					group_id BIGINT REFERENCES folio_group(id) ON DELETE CASCADE,
					institution VARCHAR(255) REFERENCES institution(name) ON DELETE CASCADE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS export_archive (
					id BIGSERIAL PRIMARY KEY,
					usr BIGINT NOT NULL REFERENCES usr(id) ON DELETE CASCADE,
					group_id BIGINT REFERENCES folio_group(id) ON DELETE SET NULL,
					filename VARCHAR(255) NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);
			`,
		},
		{
			Version:     10,
			Description: "Create session and preference tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS usr_session (
					session_id VARCHAR(255) PRIMARY KEY,
					usr BIGINT NOT NULL REFERENCES usr(id) ON DELETE CASCADE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					expires_at TIMESTAMP
				);

				CREATE INDEX idx_usr_session_usr ON usr_session(usr);
				CREATE INDEX idx_usr_session_expires ON usr_session(expires_at);

				CREATE TABLE IF NOT EXISTS usr_account_preference (
					usr BIGINT NOT NULL REFERENCES usr(id) ON DELETE CASCADE,
					field VARCHAR(255) NOT NULL,
					value TEXT NOT NULL DEFAULT '',
					PRIMARY KEY (usr, field)
				);

				CREATE TABLE IF NOT EXISTS usr_activity_preference (
					usr BIGINT NOT NULL REFERENCES usr(id) ON DELETE CASCADE,
					activity VARCHAR(255) NOT NULL,
					method VARCHAR(255) NOT NULL DEFAULT '',
					PRIMARY KEY (usr, activity)
				);
			`,
		},
	}
}

// RunMigrations applies all pending migrations in order. Each migration runs
// in its own transaction and is recorded in identity_migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	// Create migrations tracking table
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS identity_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	// Get applied migrations
	rows, err := db.QueryContext(ctx, "SELECT version FROM identity_migrations")
	if err != nil {
		return fmt.Errorf("failed to query applied migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()

	// Run pending migrations
	for _, migration := range GetMigrations() {
		if appliedVersions[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO identity_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
