// Package postgres stores document collections as JSONB rows of a single
// documents table keyed by (collection, id).
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"trialstore/internal/docstore"
	"trialstore/pkg/platform/sentinel"
	"trialstore/pkg/platform/tx"
)

const uniqueViolation = "23505"

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Store is a docstore.Store over *sql.DB.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Collection(name string) docstore.Collection {
	return &Collection{db: s.db, name: name}
}

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close(context.Context) error { return s.db.Close() }

// Collection is one logical collection inside the documents table.
type Collection struct {
	db   *sql.DB
	name string
}

func (c *Collection) Name() string { return c.name }

// where renders the filter as SQL predicates; args[0] is always the
// collection name.
func (c *Collection) where(f docstore.Filter) (string, []any, error) {
	clauses := []string{"collection = $1"}
	args := []any{c.name}
	if f.ID != "" {
		args = append(args, f.ID)
		clauses = append(clauses, fmt.Sprintf("id = $%d", len(args)))
	}
	if len(f.ExcludeIDs) > 0 {
		args = append(args, pq.Array(f.ExcludeIDs))
		clauses = append(clauses, fmt.Sprintf("NOT (id = ANY($%d))", len(args)))
	}
	if len(f.Equals) > 0 {
		raw, err := json.Marshal(f.Equals)
		if err != nil {
			return "", nil, fmt.Errorf("encode filter: %w", err)
		}
		args = append(args, string(raw))
		clauses = append(clauses, fmt.Sprintf("body @> $%d::jsonb", len(args)))
	}
	return strings.Join(clauses, " AND "), args, nil
}

func (c *Collection) FindOne(ctx context.Context, filter docstore.Filter) (docstore.Document, error) {
	where, args, err := c.where(filter)
	if err != nil {
		return nil, err
	}
	var raw []byte
	q := "SELECT body FROM documents WHERE " + where + " ORDER BY seq LIMIT 1"
	if err := tx.Conn(ctx, c.db).QueryRowContext(ctx, q, args...).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find one in %s: %w", c.name, err)
	}
	return decode(raw)
}

func (c *Collection) Find(ctx context.Context, filter docstore.Filter, opts ...docstore.FindOption) (docstore.Cursor, error) {
	where, args, err := c.where(filter)
	if err != nil {
		return nil, err
	}
	o := docstore.ApplyFindOptions(opts...)
	q := "SELECT body FROM documents WHERE " + where + " ORDER BY seq"
	if o.Limit > 0 {
		args = append(args, o.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	rows, err := tx.Conn(ctx, c.db).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("find in %s: %w", c.name, err)
	}
	return &cursor{rows: rows}, nil
}

// UpdateOne merges update.Set into the first matching row. Matching and
// writing run in one transaction with the row locked.
func (c *Collection) UpdateOne(ctx context.Context, filter docstore.Filter, update docstore.Update, upsert bool) (docstore.UpdateResult, error) {
	set := make(docstore.Document, len(update.Set))
	for k, v := range update.Set {
		if k != docstore.IDField {
			set[k] = v
		}
	}
	patch, err := json.Marshal(set)
	if err != nil {
		return docstore.UpdateResult{}, fmt.Errorf("encode update: %w", err)
	}

	var res docstore.UpdateResult
	err = tx.Run(ctx, c.db, func(ctx context.Context) error {
		where, args, err := c.where(filter)
		if err != nil {
			return err
		}
		conn := tx.Conn(ctx, c.db)
		var id string
		err = conn.QueryRowContext(ctx, "SELECT id FROM documents WHERE "+where+" ORDER BY seq LIMIT 1 FOR UPDATE", args...).Scan(&id)
		switch {
		case err == nil:
			if _, err := conn.ExecContext(ctx,
				`UPDATE documents SET body = body || $3::jsonb, updated_at = now() WHERE collection = $1 AND id = $2`,
				c.name, id, string(patch)); err != nil {
				return fmt.Errorf("update %s in %s: %w", id, c.name, err)
			}
			res = docstore.UpdateResult{Matched: 1, Modified: 1}
			return nil
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("match in %s: %w", c.name, err)
		case !upsert:
			return nil
		}

		doc := docstore.Document{}
		for k, v := range filter.Equals {
			doc[k] = v
		}
		for k, v := range set {
			doc[k] = v
		}
		id = filter.ID
		if id == "" {
			id = uuid.NewString()
		}
		doc[docstore.IDField] = id
		body, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("encode document: %w", err)
		}
		if _, err := conn.ExecContext(ctx,
			`INSERT INTO documents (collection, id, body) VALUES ($1, $2, $3::jsonb)
			 ON CONFLICT (collection, id) DO UPDATE SET body = documents.body || EXCLUDED.body, updated_at = now()`,
			c.name, id, string(body)); err != nil {
			return fmt.Errorf("upsert %s in %s: %w", id, c.name, err)
		}
		res = docstore.UpdateResult{UpsertedID: id}
		return nil
	})
	return res, err
}

func (c *Collection) InsertOne(ctx context.Context, doc docstore.Document) (string, error) {
	stored := make(docstore.Document, len(doc)+1)
	for k, v := range doc {
		stored[k] = v
	}
	id := stored.ID()
	if id == "" {
		id = uuid.NewString()
	}
	stored[docstore.IDField] = id
	body, err := json.Marshal(stored)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	_, err = tx.Conn(ctx, c.db).ExecContext(ctx,
		`INSERT INTO documents (collection, id, body) VALUES ($1, $2, $3::jsonb)`, c.name, id, string(body))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return "", fmt.Errorf("insert %s into %s: %w", id, c.name, sentinel.ErrConflict)
		}
		return "", fmt.Errorf("insert into %s: %w", c.name, err)
	}
	return id, nil
}

func (c *Collection) DeleteMany(ctx context.Context, filter docstore.Filter) (int64, error) {
	where, args, err := c.where(filter)
	if err != nil {
		return 0, err
	}
	res, err := tx.Conn(ctx, c.db).ExecContext(ctx, "DELETE FROM documents WHERE "+where, args...)
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", c.name, err)
	}
	return res.RowsAffected()
}

func (c *Collection) CountDocuments(ctx context.Context, filter docstore.Filter) (int64, error) {
	where, args, err := c.where(filter)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := tx.Conn(ctx, c.db).QueryRowContext(ctx, "SELECT count(*) FROM documents WHERE "+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", c.name, err)
	}
	return n, nil
}

// CreateIndex adds a partial expression index on body->>field for this
// collection. Uniqueness is enforced per collection.
func (c *Collection) CreateIndex(ctx context.Context, field string, unique bool) error {
	if !identRe.MatchString(field) {
		return fmt.Errorf("index field %q: only letters, digits and underscores are allowed", field)
	}
	kind := "INDEX"
	if unique {
		kind = "UNIQUE INDEX"
	}
	name := pq.QuoteIdentifier(fmt.Sprintf("idx_doc_%s_%s", sanitize(c.name), field))
	q := fmt.Sprintf("CREATE %s IF NOT EXISTS %s ON documents ((body->>%s)) WHERE collection = %s",
		kind, name, pq.QuoteLiteral(field), pq.QuoteLiteral(c.name))
	if _, err := tx.Conn(ctx, c.db).ExecContext(ctx, q); err != nil {
		return fmt.Errorf("create index on %s.%s: %w", c.name, field, err)
	}
	return nil
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, s)
}

func decode(raw []byte) (docstore.Document, error) {
	var doc docstore.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

type cursor struct {
	rows *sql.Rows
	cur  docstore.Document
	err  error
}

func (c *cursor) Next(ctx context.Context) bool {
	if c.err != nil {
		return false
	}
	if err := ctx.Err(); err != nil {
		c.err = err
		return false
	}
	if !c.rows.Next() {
		return false
	}
	var raw []byte
	if err := c.rows.Scan(&raw); err != nil {
		c.err = err
		return false
	}
	c.cur, c.err = decode(raw)
	return c.err == nil
}

func (c *cursor) Document() docstore.Document { return c.cur }

func (c *cursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.rows.Err()
}

func (c *cursor) Close(context.Context) error { return c.rows.Close() }
