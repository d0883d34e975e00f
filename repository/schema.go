package repository

import "context"

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id SERIAL PRIMARY KEY,
		username TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		balance INTEGER NOT NULL DEFAULT 100
	)`,
	`CREATE TABLE IF NOT EXISTS bounties (
		id SERIAL PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT,
		reward INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'open',
		created_by INTEGER NOT NULL REFERENCES users(id),
		assigned_to INTEGER REFERENCES users(id),
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id UUID PRIMARY KEY,
		user_id INTEGER NOT NULL REFERENCES users(id),
		change_amount INTEGER NOT NULL,
		kind TEXT NOT NULL,
		metadata JSONB,
		created_at TIMESTAMP NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS applications (
		id SERIAL PRIMARY KEY,
		bounty_id INTEGER NOT NULL REFERENCES bounties(id),
		user_id INTEGER NOT NULL REFERENCES users(id),
		created_at TIMESTAMP NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS comments (
		id SERIAL PRIMARY KEY,
		bounty_id INTEGER NOT NULL REFERENCES bounties(id),
		user_id INTEGER NOT NULL REFERENCES users(id),
		message TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS attachments (
		id SERIAL PRIMARY KEY,
		bounty_id INTEGER NOT NULL REFERENCES bounties(id),
		user_id INTEGER NOT NULL REFERENCES users(id),
		filename TEXT NOT NULL,
		filepath TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT NOW()
	)`,
}

func (r PostgresRepository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
