package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/relaygram/server/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore keeps both collections in Postgres. Selected over the file
// store when DATABASE_URL is set.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres connects, configures the pool and runs pending migrations.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) LoadUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT phone_number, username, registered_at
		FROM users
		ORDER BY registered_at
	`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.PhoneNumber, &u.Username, &u.RegisteredAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

// SaveUsers upserts every identity in one transaction. The collection is
// small (single-node directory), so a full upsert keeps the Store contract
// identical to the file backend.
func (s *PostgresStore) SaveUsers(ctx context.Context, users []model.User) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, u := range users {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO users (phone_number, username, registered_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (phone_number) DO UPDATE SET username = EXCLUDED.username
		`, u.PhoneNumber, u.Username, u.RegisteredAt)
		if err != nil {
			return fmt.Errorf("upsert user %s: %w", u.PhoneNumber, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *PostgresStore) LoadMessages(ctx context.Context) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, from_phone, to_phone, text, sent_at
		FROM messages
		ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.From, &m.To, &m.Text, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return msgs, nil
}

func (s *PostgresStore) AppendMessage(ctx context.Context, msg model.Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, from_phone, to_phone, text, sent_at)
		VALUES ($1, $2, $3, $4, $5)
	`, msg.ID, msg.From, msg.To, msg.Text, msg.Timestamp)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
