package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type Database struct {
	Conn *sql.DB
}

func NewDatabase(dsn string) (*Database, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(25)
	conn.SetConnMaxLifetime(5 * time.Minute)
	return &Database{Conn: conn}, nil
}

func (d *Database) AutoMigrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            username VARCHAR(50) UNIQUE NOT NULL,
            password VARCHAR(255) NOT NULL,
            email VARCHAR(255),
            created_at TIMESTAMPTZ DEFAULT now()
        )`,

		`CREATE TABLE IF NOT EXISTS profiles (
            id UUID PRIMARY KEY,
            first_name VARCHAR(100),
            last_name VARCHAR(100),
            username VARCHAR(50),
            image_url TEXT,
            email VARCHAR(255)
        )`,

		`CREATE TABLE IF NOT EXISTS conversations (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            type VARCHAR(10) CHECK (type IN ('direct', 'group')) DEFAULT 'direct',
            created_at TIMESTAMPTZ DEFAULT now(),
            updated_at TIMESTAMPTZ DEFAULT now()
        )`,

		`CREATE TABLE IF NOT EXISTS conversation_participants (
            conversation_id UUID REFERENCES conversations(id) ON DELETE CASCADE,
            user_id UUID REFERENCES profiles(id) ON DELETE CASCADE,
            joined_at TIMESTAMPTZ DEFAULT now(),
            last_read_at TIMESTAMPTZ,
            PRIMARY KEY (conversation_id, user_id)
        )`,

		`CREATE TABLE IF NOT EXISTS messages (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            conversation_id UUID REFERENCES conversations(id) ON DELETE CASCADE,
            sender_id UUID REFERENCES profiles(id) ON DELETE CASCADE,
            content TEXT NOT NULL,
            created_at TIMESTAMPTZ DEFAULT now(),
            edited_at TIMESTAMPTZ
        )`,

		`CREATE INDEX IF NOT EXISTS idx_messages_conversation_created
            ON messages (conversation_id, created_at, id)`,

		`CREATE INDEX IF NOT EXISTS idx_participants_user
            ON conversation_participants (user_id)`,

		// Atomic find-or-create for direct conversations. Runs inside the
		// function's implicit transaction, so concurrent callers for the
		// same pair converge on a single row.
		`CREATE OR REPLACE FUNCTION find_or_create_direct_conversation(user1 UUID, user2 UUID)
        RETURNS UUID AS $$
        DECLARE
            conv_id UUID;
        BEGIN
            SELECT c.id INTO conv_id
            FROM conversations c
            JOIN conversation_participants p1 ON p1.conversation_id = c.id AND p1.user_id = user1
            JOIN conversation_participants p2 ON p2.conversation_id = c.id AND p2.user_id = user2
            WHERE c.type = 'direct'
              AND (SELECT count(*) FROM conversation_participants p WHERE p.conversation_id = c.id)
                  = CASE WHEN user1 = user2 THEN 1 ELSE 2 END
            ORDER BY c.created_at
            LIMIT 1;

            IF conv_id IS NOT NULL THEN
                RETURN conv_id;
            END IF;

            INSERT INTO conversations (type) VALUES ('direct') RETURNING id INTO conv_id;
            INSERT INTO conversation_participants (conversation_id, user_id) VALUES (conv_id, user1);
            IF user1 <> user2 THEN
                INSERT INTO conversation_participants (conversation_id, user_id) VALUES (conv_id, user2);
            END IF;
            RETURN conv_id;
        END;
        $$ LANGUAGE plpgsql`,
	}

	for _, query := range queries {
		_, err := d.Conn.Exec(query)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}
