package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/crmforge/agentdesk/core"
	"github.com/crmforge/agentdesk/domain"
)

// querier abstracts *sql.DB and *sql.Tx so reads work inside and outside
// transactions.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

const customerCols = "org_id, id, name, company, email, phone, status, internal_notes, version, created_at, updated_at"

func scanCustomer(row *sql.Row) (*domain.Customer, error) {
	var c domain.Customer
	var created, updated string
	err := row.Scan(&c.OrganizationID, &c.ID, &c.Name, &c.Company, &c.Email, &c.Phone,
		&c.Status, &c.InternalNotes, &c.Version, &created, &updated)
	if err != nil {
		return nil, err
	}
	c.CreatedAt = parseTime(created)
	c.UpdatedAt = parseTime(updated)
	return &c, nil
}

func getCustomer(ctx context.Context, q querier, orgID, id string) (*domain.Customer, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+customerCols+" FROM customers WHERE org_id = ? AND id = ?", orgID, id)
	c, err := scanCustomer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &core.NotFoundError{Entity: "customer", ID: id}
	}
	return c, err
}

// GetCustomer implements domain.Reader.
func (s *Store) GetCustomer(ctx context.Context, orgID, id string) (*domain.Customer, error) {
	return getCustomer(ctx, s.db, orgID, id)
}

// SearchCustomers implements domain.Reader. Matching is a case-insensitive
// substring search over name, company and email.
func (s *Store) SearchCustomers(ctx context.Context, orgID, query string, limit int) ([]*domain.Customer, error) {
	pattern := "%" + query + "%"
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+customerCols+` FROM customers
		 WHERE org_id = ? AND (name LIKE ? COLLATE NOCASE OR company LIKE ? COLLATE NOCASE OR email LIKE ? COLLATE NOCASE)
		 ORDER BY name LIMIT ?`, orgID, pattern, pattern, pattern, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Customer
	for rows.Next() {
		var c domain.Customer
		var created, updated string
		if err := rows.Scan(&c.OrganizationID, &c.ID, &c.Name, &c.Company, &c.Email, &c.Phone,
			&c.Status, &c.InternalNotes, &c.Version, &created, &updated); err != nil {
			return nil, err
		}
		c.CreatedAt = parseTime(created)
		c.UpdatedAt = parseTime(updated)
		out = append(out, &c)
	}
	return out, rows.Err()
}

const orderCols = "org_id, id, customer_id, status, lines, subtotal, tax, total, version, created_at, updated_at"

func scanOrderRow(scan func(dest ...any) error) (*domain.Order, error) {
	var o domain.Order
	var lines, created, updated string
	err := scan(&o.OrganizationID, &o.ID, &o.CustomerID, &o.Status, &lines,
		&o.Subtotal, &o.Tax, &o.Total, &o.Version, &created, &updated)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(lines), &o.Lines); err != nil {
		return nil, err
	}
	o.CreatedAt = parseTime(created)
	o.UpdatedAt = parseTime(updated)
	return &o, nil
}

func getOrder(ctx context.Context, q querier, orgID, id string) (*domain.Order, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+orderCols+" FROM orders WHERE org_id = ? AND id = ?", orgID, id)
	o, err := scanOrderRow(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &core.NotFoundError{Entity: "order", ID: id}
	}
	return o, err
}

// GetOrder implements domain.Reader.
func (s *Store) GetOrder(ctx context.Context, orgID, id string) (*domain.Order, error) {
	return getOrder(ctx, s.db, orgID, id)
}

// ListOrders implements domain.Reader.
func (s *Store) ListOrders(ctx context.Context, orgID, customerID string, limit int) ([]*domain.Order, error) {
	query := "SELECT " + orderCols + " FROM orders WHERE org_id = ?"
	args := []any{orgID}
	if customerID != "" {
		query += " AND customer_id = ?"
		args = append(args, customerID)
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Order
	for rows.Next() {
		o, err := scanOrderRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// LatestActivity implements domain.Reader.
func (s *Store) LatestActivity(ctx context.Context, orgID, entityID string) (*domain.Activity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT org_id, id, entity_id, kind, note, occurred_at FROM activities
		 WHERE org_id = ? AND entity_id = ? ORDER BY occurred_at DESC LIMIT 1`, orgID, entityID)
	var a domain.Activity
	var occurred string
	err := row.Scan(&a.OrganizationID, &a.ID, &a.EntityID, &a.Kind, &a.Note, &occurred)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.OccurredAt = parseTime(occurred)
	return &a, nil
}

// CountOrders implements domain.Reader.
func (s *Store) CountOrders(ctx context.Context, orgID, customerID string) (int, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM orders WHERE org_id = ? AND customer_id = ?", orgID, customerID)
	var n int
	err := row.Scan(&n)
	return n, err
}

// RevenueByMonth implements domain.Reader. Cancelled orders are excluded.
func (s *Store) RevenueByMonth(ctx context.Context, orgID string, from, to time.Time) ([]domain.RevenuePoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT substr(created_at, 1, 7) AS period, SUM(total), COUNT(*)
		 FROM orders
		 WHERE org_id = ? AND status != 'cancelled' AND created_at >= ? AND created_at <= ?
		 GROUP BY period ORDER BY period`,
		orgID, fmtTime(from), fmtTime(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RevenuePoint
	for rows.Next() {
		var p domain.RevenuePoint
		if err := rows.Scan(&p.Period, &p.Revenue, &p.Orders); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// InTx implements domain.Store.
func (s *Store) InTx(ctx context.Context, fn func(tx domain.Tx) error) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return fn(&domainTx{tx: tx})
	})
}

// domainTx adapts a *sql.Tx to the domain mutation surface.
type domainTx struct {
	tx *sql.Tx
}

func (t *domainTx) GetCustomer(ctx context.Context, orgID, id string) (*domain.Customer, error) {
	return getCustomer(ctx, t.tx, orgID, id)
}

func (t *domainTx) UpdateCustomer(ctx context.Context, c *domain.Customer) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE customers SET name = ?, company = ?, email = ?, phone = ?, status = ?,
		 internal_notes = ?, version = ?, updated_at = ?
		 WHERE org_id = ? AND id = ?`,
		c.Name, c.Company, c.Email, c.Phone, c.Status,
		c.InternalNotes, c.Version, fmtTime(time.Now()),
		c.OrganizationID, c.ID)
	if err != nil {
		return err
	}
	return requireRow(res, "customer", c.ID)
}

func (t *domainTx) GetOrder(ctx context.Context, orgID, id string) (*domain.Order, error) {
	return getOrder(ctx, t.tx, orgID, id)
}

func (t *domainTx) UpdateOrder(ctx context.Context, o *domain.Order) error {
	lines, err := json.Marshal(o.Lines)
	if err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx,
		`UPDATE orders SET customer_id = ?, status = ?, lines = ?, subtotal = ?, tax = ?,
		 total = ?, version = ?, updated_at = ?
		 WHERE org_id = ? AND id = ?`,
		o.CustomerID, o.Status, string(lines), o.Subtotal, o.Tax,
		o.Total, o.Version, fmtTime(time.Now()),
		o.OrganizationID, o.ID)
	if err != nil {
		return err
	}
	return requireRow(res, "order", o.ID)
}

func (t *domainTx) InsertQuote(ctx context.Context, q *domain.Quote) error {
	lines, err := json.Marshal(q.Lines)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO quotes (org_id, id, customer_id, title, lines, total, valid_until, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		q.OrganizationID, q.ID, q.CustomerID, q.Title, string(lines), q.Total,
		fmtTime(q.ValidUntil), fmtTime(q.CreatedAt))
	return err
}

// SeedCustomer inserts a customer directly, bypassing the approval workflow.
// Fixture helper for tests and demos.
func (s *Store) SeedCustomer(ctx context.Context, c *domain.Customer) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO customers (`+customerCols+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.OrganizationID, c.ID, c.Name, c.Company, c.Email, c.Phone,
		c.Status, c.InternalNotes, c.Version, fmtTime(c.CreatedAt), fmtTime(c.UpdatedAt))
	return err
}

// SeedOrder inserts an order directly. Fixture helper.
func (s *Store) SeedOrder(ctx context.Context, o *domain.Order) error {
	lines, err := json.Marshal(o.Lines)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO orders (`+orderCols+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.OrganizationID, o.ID, o.CustomerID, o.Status, string(lines),
		o.Subtotal, o.Tax, o.Total, o.Version, fmtTime(o.CreatedAt), fmtTime(o.UpdatedAt))
	return err
}

// SeedActivity inserts a timeline entry directly. Fixture helper.
func (s *Store) SeedActivity(ctx context.Context, a *domain.Activity) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO activities (org_id, id, entity_id, kind, note, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		a.OrganizationID, a.ID, a.EntityID, a.Kind, a.Note, fmtTime(a.OccurredAt))
	return err
}

func requireRow(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &core.NotFoundError{Entity: entity, ID: id}
	}
	return nil
}
