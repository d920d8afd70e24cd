package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/marcboeker/go-duckdb"
	"github.com/product-designer/backend/internal/models"
)

// ErrDesignNotFound is returned for unknown design ids.
var ErrDesignNotFound = errors.New("design not found")

// DesignStore persists saved designs (view configuration plus per-view
// element snapshots) in a DuckDB file.
type DesignStore struct {
	db     *sql.DB
	dbPath string
}

// OpenDesignStore opens or creates the design database at dbPath. An empty
// path opens an in-memory database.
func OpenDesignStore(dbPath string) (*DesignStore, error) {
	if dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	connector, err := duckdb.NewConnector(dbPath, func(execer driver.ExecerContext) error {
		pragmas := []string{
			"PRAGMA memory_limit='256MB'",
			"PRAGMA threads=2",
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)
	schema := []string{
		`CREATE TABLE IF NOT EXISTS designs (
			id            VARCHAR PRIMARY KEY,
			session_id    VARCHAR NOT NULL,
			product_id    VARCHAR,
			product_title VARCHAR NOT NULL,
			product       VARCHAR NOT NULL,
			price         DOUBLE,
			autosave      BOOLEAN NOT NULL,
			created_at    TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS design_views (
			design_id  VARCHAR NOT NULL,
			view_index INTEGER NOT NULL,
			snapshot   BLOB NOT NULL,
			PRIMARY KEY (design_id, view_index)
		)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &DesignStore{db: db, dbPath: dbPath}, nil
}

// Save persists a design. A missing id or timestamp is filled in. Autosaves
// replace the previous autosave of the same session.
func (ds *DesignStore) Save(ctx context.Context, d *models.SavedDesign) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	product, err := json.Marshal(d.Product)
	if err != nil {
		return fmt.Errorf("encoding product: %w", err)
	}

	tx, err := ds.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if d.Autosave {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM design_views WHERE design_id IN (SELECT id FROM designs WHERE session_id = ? AND autosave)`,
			d.SessionID); err != nil {
			return fmt.Errorf("clearing autosave views: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM designs WHERE session_id = ? AND autosave`, d.SessionID); err != nil {
			return fmt.Errorf("clearing autosave: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM design_views WHERE design_id = ?`, d.ID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM designs WHERE id = ?`, d.ID); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO designs (id, session_id, product_id, product_title, product, price, autosave, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.SessionID, d.ProductID, d.ProductTitle, string(product), d.Price, d.Autosave, d.CreatedAt,
	); err != nil {
		return fmt.Errorf("inserting design: %w", err)
	}
	for i, snap := range d.Views {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO design_views (design_id, view_index, snapshot) VALUES (?, ?, ?)`,
			d.ID, i, snap,
		); err != nil {
			return fmt.Errorf("inserting view %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// Get loads a design with its view snapshots.
func (ds *DesignStore) Get(ctx context.Context, id string) (*models.SavedDesign, error) {
	row := ds.db.QueryRowContext(ctx,
		`SELECT id, session_id, product_id, product_title, product, price, autosave, created_at
		 FROM designs WHERE id = ?`, id)
	d, err := scanDesign(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrDesignNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := ds.db.QueryContext(ctx,
		`SELECT snapshot FROM design_views WHERE design_id = ? ORDER BY view_index`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var snap []byte
		if err := rows.Scan(&snap); err != nil {
			return nil, err
		}
		d.Views = append(d.Views, snap)
	}
	return d, rows.Err()
}

// List returns design metadata, newest first. An empty sessionID lists every
// session. View snapshots are not loaded.
func (ds *DesignStore) List(ctx context.Context, sessionID string, limit int) ([]*models.SavedDesign, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, session_id, product_id, product_title, product, price, autosave, created_at FROM designs`
	args := []any{}
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := ds.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.SavedDesign
	for rows.Next() {
		d, err := scanDesign(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Delete removes a design and its snapshots.
func (ds *DesignStore) Delete(ctx context.Context, id string) error {
	if _, err := ds.db.ExecContext(ctx, `DELETE FROM design_views WHERE design_id = ?`, id); err != nil {
		return err
	}
	res, err := ds.db.ExecContext(ctx, `DELETE FROM designs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrDesignNotFound, id)
	}
	return nil
}

// Close closes the database. The file is kept.
func (ds *DesignStore) Close() error {
	if ds.db == nil {
		return nil
	}
	return ds.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDesign(row scanner) (*models.SavedDesign, error) {
	var (
		d         models.SavedDesign
		productID sql.NullString
		price     sql.NullFloat64
		product   string
	)
	if err := row.Scan(&d.ID, &d.SessionID, &productID, &d.ProductTitle, &product, &price, &d.Autosave, &d.CreatedAt); err != nil {
		return nil, err
	}
	d.ProductID = productID.String
	d.Price = price.Float64
	if err := json.Unmarshal([]byte(product), &d.Product); err != nil {
		return nil, fmt.Errorf("decoding product of design %s: %w", d.ID, err)
	}
	return &d, nil
}
