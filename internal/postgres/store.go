package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-storefront/internal/orders"
)

// queryer is satisfied by both *pgxpool.Pool and pgx.Tx.
type queryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements orders.Store on Postgres. Reads outside InTx run on the
// pool; inside InTx single-row lookups take FOR UPDATE row locks.
type Store struct {
	pool *pgxpool.Pool
	*repo
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, repo: &repo{q: pool}}
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, r orders.Repo) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &repo{q: tx, lock: true}); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(ctx), "commit tx")
}

type repo struct {
	q    queryer
	lock bool
}

func (r *repo) forUpdate(sql string) string {
	if r.lock {
		return sql + " FOR UPDATE"
	}
	return sql
}

func noRows(err error, op string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.ErrNotFound
	}
	return errors.Wrap(err, op)
}

// ---- users ----

func (r *repo) FindUser(ctx context.Context, id string) (orders.User, error) {
	var u orders.User
	err := r.q.QueryRow(ctx, `
		SELECT id, email, name, role, disabled, created_at
		FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.Disabled, &u.CreatedAt)
	if err != nil {
		return orders.User{}, noRows(err, "find user")
	}
	return u, nil
}

func (r *repo) SaveUser(ctx context.Context, u *orders.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := r.q.Exec(ctx, `
		INSERT INTO users (id, email, name, role, disabled, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET email = EXCLUDED.email, name = EXCLUDED.name, role = EXCLUDED.role, disabled = EXCLUDED.disabled`,
		u.ID, u.Email, u.Name, u.Role, u.Disabled, u.CreatedAt)
	return errors.Wrap(err, "save user")
}

// ---- products ----

const productColumns = `id, name, description, price, stock, category, deleted, created_at, updated_at`

func scanProduct(row pgx.Row) (orders.Product, error) {
	var p orders.Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock, &p.Category, &p.Deleted, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *repo) FindProduct(ctx context.Context, id string) (orders.Product, error) {
	p, err := scanProduct(r.q.QueryRow(ctx, r.forUpdate(`SELECT `+productColumns+` FROM products WHERE id = $1`), id))
	if err != nil {
		return orders.Product{}, noRows(err, "find product")
	}
	return p, nil
}

func (r *repo) ListProducts(ctx context.Context, f orders.ProductFilter) ([]orders.Product, error) {
	var w where
	w.raw("NOT deleted")
	if f.Category != "" {
		w.add("category = $%d", f.Category)
	}
	if f.AvailableOnly {
		w.raw("stock > 0")
	}
	if f.MaxStock != nil {
		w.add("stock < $%d", *f.MaxStock)
	}
	rows, err := r.q.Query(ctx, `SELECT `+productColumns+` FROM products`+w.String()+` ORDER BY name, id`, w.args...)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	defer rows.Close()

	out := make([]orders.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan product")
		}
		out = append(out, p)
	}
	return out, errors.Wrap(rows.Err(), "list products")
}

func (r *repo) SaveProduct(ctx context.Context, p *orders.Product) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}
	_, err := r.q.Exec(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, description = EXCLUDED.description, price = EXCLUDED.price,
		    stock = EXCLUDED.stock, category = EXCLUDED.category, deleted = EXCLUDED.deleted,
		    updated_at = EXCLUDED.updated_at`,
		p.ID, p.Name, p.Description, p.Price, p.Stock, p.Category, p.Deleted, p.CreatedAt, p.UpdatedAt)
	return errors.Wrap(err, "save product")
}

// ---- carts ----

func (r *repo) FindCartByUser(ctx context.Context, userID string) (orders.Cart, error) {
	var c orders.Cart
	err := r.q.QueryRow(ctx, r.forUpdate(`SELECT id, user_id, created_at, updated_at FROM carts WHERE user_id = $1`), userID).
		Scan(&c.ID, &c.UserID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return orders.Cart{}, noRows(err, "find cart")
	}

	rows, err := r.q.Query(ctx, `
		SELECT product_id, quantity, added_at
		FROM cart_lines WHERE cart_id = $1
		ORDER BY position`, c.ID)
	if err != nil {
		return orders.Cart{}, errors.Wrap(err, "load cart lines")
	}
	defer rows.Close()
	for rows.Next() {
		var l orders.CartLine
		if err := rows.Scan(&l.ProductID, &l.Quantity, &l.AddedAt); err != nil {
			return orders.Cart{}, errors.Wrap(err, "scan cart line")
		}
		c.Lines = append(c.Lines, l)
	}
	return c, errors.Wrap(rows.Err(), "load cart lines")
}

// SaveCart upserts on user_id so a user never owns two carts, then replaces
// the lines. c.ID and c.CreatedAt are updated to the stored row's values.
func (r *repo) SaveCart(ctx context.Context, c *orders.Cart) error {
	err := r.q.QueryRow(ctx, `
		INSERT INTO carts (id, user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET updated_at = EXCLUDED.updated_at
		RETURNING id, created_at`,
		c.ID, c.UserID, c.CreatedAt, c.UpdatedAt).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "save cart")
	}
	if _, err := r.q.Exec(ctx, `DELETE FROM cart_lines WHERE cart_id = $1`, c.ID); err != nil {
		return errors.Wrap(err, "clear cart lines")
	}
	for i, l := range c.Lines {
		if _, err := r.q.Exec(ctx, `
			INSERT INTO cart_lines (cart_id, product_id, quantity, position, added_at)
			VALUES ($1, $2, $3, $4, $5)`,
			c.ID, l.ProductID, l.Quantity, i, l.AddedAt); err != nil {
			return errors.Wrapf(err, "save cart line %s", l.ProductID)
		}
	}
	return nil
}

func (r *repo) DeleteCart(ctx context.Context, cartID string) error {
	ct, err := r.q.Exec(ctx, `DELETE FROM carts WHERE id = $1`, cartID)
	if err != nil {
		return errors.Wrap(err, "delete cart")
	}
	if ct.RowsAffected() == 0 {
		return orders.ErrNotFound
	}
	return nil
}

// ---- orders ----

func (r *repo) CreateOrder(ctx context.Context, o *orders.Order) error {
	if _, err := r.q.Exec(ctx, `
		INSERT INTO orders (id, user_id, status, total, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		o.ID, o.UserID, o.Status, o.Total, o.CreatedAt, o.UpdatedAt); err != nil {
		return errors.Wrap(err, "insert order")
	}
	for i, l := range o.Lines {
		if _, err := r.q.Exec(ctx, `
			INSERT INTO order_lines (order_id, line_no, product_id, product_name, quantity, price_at_purchase)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			o.ID, i, l.ProductID, l.ProductName, l.Quantity, l.PriceAtPurchase); err != nil {
			return errors.Wrapf(err, "insert order line %s", l.ProductID)
		}
	}
	return nil
}

func (r *repo) UpdateOrder(ctx context.Context, o *orders.Order) error {
	ct, err := r.q.Exec(ctx, `UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1`, o.ID, o.Status, o.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "update order")
	}
	if ct.RowsAffected() == 0 {
		return orders.ErrNotFound
	}
	return nil
}

const orderColumns = `id, user_id, status, total, created_at, updated_at`

func scanOrder(row pgx.Row) (orders.Order, error) {
	var o orders.Order
	err := row.Scan(&o.ID, &o.UserID, &o.Status, &o.Total, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

func (r *repo) FindOrder(ctx context.Context, id string) (orders.Order, error) {
	o, err := scanOrder(r.q.QueryRow(ctx, r.forUpdate(`SELECT `+orderColumns+` FROM orders WHERE id = $1`), id))
	if err != nil {
		return orders.Order{}, noRows(err, "find order")
	}
	list := []orders.Order{o}
	if err := r.attachLines(ctx, list); err != nil {
		return orders.Order{}, err
	}
	return list[0], nil
}

func (r *repo) DeleteOrder(ctx context.Context, id string) error {
	ct, err := r.q.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "delete order")
	}
	if ct.RowsAffected() == 0 {
		return orders.ErrNotFound
	}
	return nil
}

func (r *repo) ListOrders(ctx context.Context, f orders.OrderFilter) ([]orders.Order, error) {
	w := orderWhere(f)
	rows, err := r.q.Query(ctx, `SELECT `+orderColumns+` FROM orders`+w.String()+` ORDER BY created_at DESC, id`, w.args...)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	out := make([]orders.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "scan order")
		}
		out = append(out, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	if err := r.attachLines(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repo) CountOrders(ctx context.Context, f orders.OrderFilter) (int, error) {
	w := orderWhere(f)
	var n int
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM orders`+w.String(), w.args...).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "count orders")
	}
	return n, nil
}

func (r *repo) SumOrderTotals(ctx context.Context, f orders.OrderFilter) (decimal.Decimal, error) {
	w := orderWhere(f)
	var sum decimal.Decimal
	if err := r.q.QueryRow(ctx, `SELECT COALESCE(SUM(total), 0) FROM orders`+w.String(), w.args...).Scan(&sum); err != nil {
		return decimal.Zero, errors.Wrap(err, "sum order totals")
	}
	return sum, nil
}

// attachLines loads the lines of every order in one query.
func (r *repo) attachLines(ctx context.Context, list []orders.Order) error {
	if len(list) == 0 {
		return nil
	}
	idx := make(map[string]int, len(list))
	ids := make([]string, len(list))
	for i, o := range list {
		idx[o.ID] = i
		ids[i] = o.ID
	}
	rows, err := r.q.Query(ctx, `
		SELECT order_id, product_id, product_name, quantity, price_at_purchase
		FROM order_lines WHERE order_id = ANY($1)
		ORDER BY order_id, line_no`, ids)
	if err != nil {
		return errors.Wrap(err, "load order lines")
	}
	defer rows.Close()
	for rows.Next() {
		var (
			orderID string
			l       orders.OrderLine
		)
		if err := rows.Scan(&orderID, &l.ProductID, &l.ProductName, &l.Quantity, &l.PriceAtPurchase); err != nil {
			return errors.Wrap(err, "scan order line")
		}
		i := idx[orderID]
		list[i].Lines = append(list[i].Lines, l)
	}
	return errors.Wrap(rows.Err(), "load order lines")
}

func orderWhere(f orders.OrderFilter) where {
	var w where
	if f.UserID != "" {
		w.add("user_id = $%d", f.UserID)
	}
	if f.Status != "" {
		w.add("status = $%d", f.Status)
	}
	if !f.From.IsZero() {
		w.add("created_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		w.add("created_at < $%d", f.To)
	}
	return w
}

// where accumulates AND-ed predicates with numbered placeholders.
type where struct {
	clauses []string
	args    []any
}

func (w *where) add(clause string, arg any) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, fmt.Sprintf(clause, len(w.args)))
}

func (w *where) raw(clause string) { w.clauses = append(w.clauses, clause) }

func (w where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}
