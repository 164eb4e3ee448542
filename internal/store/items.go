package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"evolvedvault.dev/internal/ctxlog"
)

// Item is one stored blob.
type Item struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	SHA256    string    `json:"sha256"`
	MIMEType  string    `json:"mime_type"`
	Extension string    `json:"extension"`
	Size      int64     `json:"size"`
	Content   []byte    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// PutItem stores item unless an item with the same SHA-256 already exists,
// in which case the existing row is returned and existed is true.
func PutItem(ctx context.Context, db *sql.DB, item Item) (stored Item, existed bool, err error) {
	if db == nil {
		return Item{}, false, fmt.Errorf("database connection is nil")
	}
	logger := ctxlog.FromContext(ctx)

	existing, err := GetItemBySHA256(ctx, db, item.SHA256)
	switch {
	case err == nil:
		logger.Debug("item already stored", "id", existing.ID, "sha256", item.SHA256)
		return existing, true, nil
	case !errors.Is(err, ErrNotFound):
		return Item{}, false, err
	}

	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	if item.Content == nil {
		item.Content = []byte{}
	}

	result, err := db.ExecContext(ctx, `
		INSERT INTO items (name, sha256, mime_type, extension, size, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		item.Name, item.SHA256, item.MIMEType, item.Extension, item.Size, item.Content, item.CreatedAt.UnixNano())
	if err != nil {
		return Item{}, false, fmt.Errorf("failed to insert item: %w", err)
	}

	item.ID, err = result.LastInsertId()
	if err != nil {
		return Item{}, false, fmt.Errorf("failed to read item id: %w", err)
	}

	logger.Debug("item stored", "id", item.ID, "name", item.Name, "size", item.Size)
	return item, false, nil
}

// GetItem returns the item with the given id, content included.
func GetItem(ctx context.Context, db *sql.DB, id int64) (Item, error) {
	return scanOneItem(db.QueryRowContext(ctx, itemSelect+` WHERE id = ?`, id))
}

// GetItemBySHA256 returns the item whose content hashes to sum.
func GetItemBySHA256(ctx context.Context, db *sql.DB, sum string) (Item, error) {
	return scanOneItem(db.QueryRowContext(ctx, itemSelect+` WHERE sha256 = ?`, sum))
}

// LatestItem returns the most recently stored item.
func LatestItem(ctx context.Context, db *sql.DB) (Item, error) {
	return scanOneItem(db.QueryRowContext(ctx, itemSelect+` ORDER BY created_at DESC, id DESC LIMIT 1`))
}

// CountItems returns the number of stored items.
func CountItems(ctx context.Context, db *sql.DB) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count items: %w", err)
	}
	return n, nil
}

// ListItems returns up to limit items, newest first, without their content.
// A limit of zero or less means no limit.
func ListItems(ctx context.Context, db *sql.DB, limit int) ([]Item, error) {
	query := `SELECT id, name, sha256, mime_type, extension, size, created_at
		FROM items ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var item Item
		var created int64
		if err := rows.Scan(&item.ID, &item.Name, &item.SHA256, &item.MIMEType, &item.Extension, &item.Size, &created); err != nil {
			return nil, fmt.Errorf("failed to scan item row: %w", err)
		}
		item.CreatedAt = time.Unix(0, created)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating item rows: %w", err)
	}
	return items, nil
}

const itemSelect = `SELECT id, name, sha256, mime_type, extension, size, content, created_at FROM items`

func scanOneItem(row *sql.Row) (Item, error) {
	var item Item
	var created int64
	err := row.Scan(&item.ID, &item.Name, &item.SHA256, &item.MIMEType, &item.Extension, &item.Size, &item.Content, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, ErrNotFound
	}
	if err != nil {
		return Item{}, fmt.Errorf("failed to scan item: %w", err)
	}
	item.CreatedAt = time.Unix(0, created)
	return item, nil
}
