package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// Connect initializes the database connection and runs migrations.
func Connect(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

func runMigrations(db *sqlx.DB) error {
	// The users table is owned by the marketplace core and is only read
	// here. The CHECK plus UNIQUE on the ordered pair guarantees one
	// conversation per unordered participant pair and backs the atomic
	// upsert in ConversationRepo.
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
            id BIGSERIAL PRIMARY KEY,
            user1_id BIGINT NOT NULL,
            user2_id BIGINT NOT NULL,
            last_message TEXT NOT NULL DEFAULT '',
            last_message_at TIMESTAMPTZ,
            unread_count INT NOT NULL DEFAULT 0,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            CHECK (user1_id < user2_id),
            UNIQUE (user1_id, user2_id)
        );`,
		`CREATE TABLE IF NOT EXISTS messages (
            id BIGSERIAL PRIMARY KEY,
            conversation_id BIGINT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
            author_id BIGINT NOT NULL,
            body TEXT NOT NULL DEFAULT '',
            attachments TEXT[] NOT NULL DEFAULT '{}',
            location JSONB,
            reply_to JSONB,
            item_ref JSONB,
            status TEXT NOT NULL DEFAULT 'active',
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            delivered_at TIMESTAMPTZ,
            read_at TIMESTAMPTZ,
            CHECK (delivered_at IS NULL OR delivered_at >= created_at),
            CHECK (read_at IS NULL OR delivered_at IS NOT NULL)
        );`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation
            ON messages (conversation_id, created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_undelivered
            ON messages (conversation_id) WHERE delivered_at IS NULL;`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}
	log.Info().Msg("database migrations applied")
	return nil
}
