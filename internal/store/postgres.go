package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrDuplicate is returned when an insert collides with a uniqueness
// constraint. Concurrent signups with the same normalized username are
// rejected here, at the database, not by application locking.
var ErrDuplicate = errors.New("duplicate record")

const uniqueViolation = "23505"

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, role, parent_username)
		VALUES ($1, $2, $3, $4)
	`, user.Username, user.PasswordHash, user.Role, user.ParentUsername)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT username, password_hash, role, parent_username, created_at
		FROM users
		WHERE username=$1
	`, username).Scan(&user.Username, &user.PasswordHash, &user.Role, &user.ParentUsername, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// ListChildUsernames returns the usernames of every user directly linked to
// the given parent. One level only; links are not transitive.
func (s *PostgresStore) ListChildUsernames(ctx context.Context, parentUsername string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username FROM users WHERE parent_username=$1
	`, parentUsername)
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	defer rows.Close()

	children := make([]string, 0)
	for rows.Next() {
		var username string
		if err := rows.Scan(&username); err != nil {
			return nil, fmt.Errorf("scan child username: %w", err)
		}
		children = append(children, username)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate children: %w", err)
	}
	return children, nil
}

func (s *PostgresStore) InsertFolder(ctx context.Context, folder Folder) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO folders (id, name, owner_username)
		VALUES ($1, $2, $3)
	`, folder.ID, folder.Name, folder.OwnerUsername)
	if err != nil {
		return fmt.Errorf("insert folder: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListFoldersByOwners(ctx context.Context, owners []string) ([]Folder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, owner_username, created_at
		FROM folders
		WHERE owner_username = ANY($1)
	`, owners)
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	defer rows.Close()

	items := make([]Folder, 0)
	for rows.Next() {
		var item Folder
		if err := rows.Scan(&item.ID, &item.Name, &item.OwnerUsername, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan folder: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate folders: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertNote(ctx context.Context, note Note) error {
	tags, items, err := encodeNotePayload(note)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO notes (id, title, content, tags, checkbox_items, folder_id, owner_username)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, note.ID, note.Title, note.Content, tags, items, note.FolderID, note.OwnerUsername)
	if err != nil {
		return fmt.Errorf("insert note: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetNote(ctx context.Context, noteID string) (Note, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, content, tags, checkbox_items, folder_id, owner_username, created_at, updated_at
		FROM notes
		WHERE id=$1
	`, noteID)
	return scanNote(row)
}

func (s *PostgresStore) ListNotesByOwners(ctx context.Context, owners []string) ([]Note, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, content, tags, checkbox_items, folder_id, owner_username, created_at, updated_at
		FROM notes
		WHERE owner_username = ANY($1)
	`, owners)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	items := make([]Note, 0)
	for rows.Next() {
		item, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notes: %w", err)
	}
	return items, nil
}

// UpdateNote replaces every mutable field wholesale. Fields absent from the
// incoming payload overwrite what was stored; this is not a merge.
func (s *PostgresStore) UpdateNote(ctx context.Context, note Note) error {
	tags, items, err := encodeNotePayload(note)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE notes
		SET title=$2, content=$3, tags=$4, checkbox_items=$5, folder_id=$6, updated_at=NOW()
		WHERE id=$1
	`, note.ID, note.Title, note.Content, tags, items, note.FolderID)
	if err != nil {
		return fmt.Errorf("update note: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update note rows affected: %w", err)
	}
	// The note may have been deleted since the caller loaded it.
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) DeleteNote(ctx context.Context, noteID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE id=$1`, noteID)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete note rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(row rowScanner) (Note, error) {
	var (
		item     Note
		rawTags  []byte
		rawItems []byte
	)
	if err := row.Scan(&item.ID, &item.Title, &item.Content, &rawTags, &rawItems, &item.FolderID, &item.OwnerUsername, &item.CreatedAt, &item.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Note{}, err
		}
		return Note{}, fmt.Errorf("scan note: %w", err)
	}
	if err := json.Unmarshal(rawTags, &item.Tags); err != nil {
		return Note{}, fmt.Errorf("decode note tags: %w", err)
	}
	if err := json.Unmarshal(rawItems, &item.CheckboxItems); err != nil {
		return Note{}, fmt.Errorf("decode note checkbox items: %w", err)
	}
	return item, nil
}

func encodeNotePayload(note Note) (tags []byte, items []byte, err error) {
	if note.Tags == nil {
		note.Tags = []string{}
	}
	if note.CheckboxItems == nil {
		note.CheckboxItems = []CheckboxItem{}
	}
	tags, err = json.Marshal(note.Tags)
	if err != nil {
		return nil, nil, fmt.Errorf("encode note tags: %w", err)
	}
	items, err = json.Marshal(note.CheckboxItems)
	if err != nil {
		return nil, nil, fmt.Errorf("encode note checkbox items: %w", err)
	}
	return tags, items, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
