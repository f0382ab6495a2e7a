package provider

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const driverName = "sqlite3_contacts"

var registerOnce sync.Once

// registerDriver installs a go-sqlite3 driver whose connections carry the
// phone_numbers_equal SQL function.
func registerDriver() {
	registerOnce.Do(func() {
		sql.Register(driverName, &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				return conn.RegisterFunc("phone_numbers_equal", phoneNumbersEqualSQL, true)
			},
		})
	})
}

const schema = `
CREATE TABLE IF NOT EXISTS raw_contacts (
	_id INTEGER PRIMARY KEY AUTOINCREMENT,
	display_name TEXT,
	account_type TEXT,
	account_name TEXT
);
CREATE INDEX IF NOT EXISTS idx_raw_contacts_display_name ON raw_contacts(display_name);

CREATE TABLE IF NOT EXISTS data (
	_id INTEGER PRIMARY KEY AUTOINCREMENT,
	raw_contact_id INTEGER NOT NULL REFERENCES raw_contacts(_id) ON DELETE CASCADE,
	mimetype TEXT NOT NULL,
	is_super_primary INTEGER NOT NULL DEFAULT 0,
	data1 TEXT,
	data2 TEXT,
	data3 TEXT,
	data4 TEXT,
	data5 TEXT,
	data6 TEXT,
	data7 TEXT,
	data8 TEXT,
	data9 TEXT,
	data10 TEXT,
	data15 BLOB
);
CREATE INDEX IF NOT EXISTS idx_data_raw_contact ON data(raw_contact_id, mimetype);
CREATE INDEX IF NOT EXISTS idx_data_mimetype ON data(mimetype);
`

// SQLiteProvider stores contacts in a SQLite database.
type SQLiteProvider struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
	closed atomic.Bool
}

var _ Provider = (*SQLiteProvider)(nil)

// OpenSQLite opens or creates the store at path. ":memory:" opens a private
// in-memory store.
func OpenSQLite(path string, logger *zap.Logger) (*SQLiteProvider, error) {
	if path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	registerDriver()

	db, err := sql.Open(driverName, path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// every connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Debug("contact store opened", zap.String("path", path))
	return &SQLiteProvider{db: db, path: path, logger: logger}, nil
}

// Path returns the database path.
func (p *SQLiteProvider) Path() string {
	return p.path
}

// Close closes the database.
func (p *SQLiteProvider) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return p.db.Close()
}

func (p *SQLiteProvider) checkOpen() error {
	if p.closed.Load() {
		return ErrClosed
	}
	return nil
}

// Query returns data rows joined with their contact, ordered by row id.
func (p *SQLiteProvider) Query(ctx context.Context, q Query) (Cursor, error) {
	if err := p.checkOpen(); err != nil {
		return nil, err
	}
	if q.ContactIDs != nil && len(q.ContactIDs) == 0 {
		return NewSliceCursor(nil), nil
	}

	var (
		where []string
		args  []interface{}
	)
	if len(q.MimeTypes) > 0 {
		where = append(where, "d.mimetype IN ("+placeholders(len(q.MimeTypes))+")")
		for _, m := range q.MimeTypes {
			args = append(args, m)
		}
	}
	if q.DisplayNamePrefix != nil {
		where = append(where, `r.display_name LIKE ? ESCAPE '\'`)
		args = append(args, escapeLike(*q.DisplayNamePrefix)+"%")
	}
	if len(q.ContactIDs) > 0 {
		where = append(where, "r._id IN ("+placeholders(len(q.ContactIDs))+")")
		for _, id := range q.ContactIDs {
			args = append(args, id)
		}
	}

	stmt := `SELECT r._id, r.display_name, d.mimetype,
		d.data1, d.data2, d.data3, d.data4, d.data5, d.data6, d.data7, d.data8, d.data9, d.data10
		FROM data d JOIN raw_contacts r ON r._id = d.raw_contact_id`
	if len(where) > 0 {
		stmt += " WHERE " + strings.Join(where, " AND ")
	}
	stmt += " ORDER BY d._id"

	rows, err := p.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query data rows: %w", mapDriverError(err))
	}
	return &sqlCursor{rows: rows}, nil
}

// LookupPhone returns the ids of contacts with a phone number matching phone.
func (p *SQLiteProvider) LookupPhone(ctx context.Context, phone string) ([]int64, error) {
	if err := p.checkOpen(); err != nil {
		return nil, err
	}
	if digitsOnly(phone) == "" {
		return nil, nil
	}

	rows, err := p.db.QueryContext(ctx,
		`SELECT DISTINCT raw_contact_id FROM data
		WHERE mimetype = ? AND phone_numbers_equal(data1, ?)
		ORDER BY raw_contact_id`,
		MimePhone, phone)
	if err != nil {
		return nil, fmt.Errorf("lookup phone: %w", mapDriverError(err))
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan contact id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// OpenPhoto returns the primary photo blob of a contact.
func (p *SQLiteProvider) OpenPhoto(ctx context.Context, contactID int64) ([]byte, error) {
	if err := p.checkOpen(); err != nil {
		return nil, err
	}

	var blob []byte
	err := p.db.QueryRowContext(ctx,
		`SELECT data15 FROM data
		WHERE raw_contact_id = ? AND mimetype = ? AND data15 IS NOT NULL
		ORDER BY is_super_primary DESC, _id LIMIT 1`,
		contactID, MimePhoto).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && len(blob) == 0) {
		return nil, fmt.Errorf("photo of contact %d: %w", contactID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("open photo: %w", mapDriverError(err))
	}
	return blob, nil
}

// ApplyBatch runs ops in a single transaction and recomputes the display
// name of every contact the batch touched.
func (p *SQLiteProvider) ApplyBatch(ctx context.Context, ops []Operation) ([]Result, error) {
	if err := p.checkOpen(); err != nil {
		return nil, err
	}
	if len(ops) == 0 {
		return nil, nil
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", mapDriverError(err))
	}
	defer tx.Rollback()

	results := make([]Result, len(ops))
	touched := make(map[int64]struct{})
	for i, op := range ops {
		res, err := applyOp(ctx, tx, op, results[:i], touched)
		if err != nil {
			p.logger.Debug("batch rolled back",
				zap.Int("op", i),
				zap.Stringer("type", op.Type),
				zap.String("table", op.Table),
				zap.Error(err))
			return nil, fmt.Errorf("operation %d (%s %s): %w", i, op.Type, op.Table, err)
		}
		results[i] = res
	}

	for _, id := range sortedIDs(touched) {
		if err := updateDisplayName(ctx, tx, id); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", mapDriverError(err))
	}
	p.logger.Debug("batch applied", zap.Int("operations", len(ops)), zap.Int("contacts", len(touched)))
	return results, nil
}

func applyOp(ctx context.Context, tx *sql.Tx, op Operation, prior []Result, touched map[int64]struct{}) (Result, error) {
	allowed, ok := writableColumns[op.Table]
	if !ok {
		return Result{}, fmt.Errorf("%w: unknown table %q", ErrInvalidOperation, op.Table)
	}

	values := make(map[string]interface{}, len(op.Values)+len(op.ValueBackReferences))
	for col, v := range op.Values {
		values[col] = v
	}
	for col, idx := range op.ValueBackReferences {
		if idx < 0 || idx >= len(prior) {
			return Result{}, fmt.Errorf("%w: back reference %d out of range", ErrInvalidOperation, idx)
		}
		values[col] = prior[idx].ID
	}
	for col := range values {
		if !allowed[col] {
			return Result{}, fmt.Errorf("%w: column %q not writable in %s", ErrInvalidOperation, col, op.Table)
		}
	}

	var (
		res Result
		err error
	)
	switch op.Type {
	case OpInsert:
		res, err = insertRow(ctx, tx, op.Table, values, touched)
	case OpUpdate:
		res, err = updateRows(ctx, tx, op, values, touched)
	case OpDelete:
		res, err = deleteRows(ctx, tx, op, touched)
	case OpAssert:
		res, err = countRows(ctx, tx, op)
	default:
		return Result{}, fmt.Errorf("%w: unknown type %d", ErrInvalidOperation, op.Type)
	}
	if err != nil {
		return Result{}, err
	}

	if op.ExpectedCount != nil && res.Count != int64(*op.ExpectedCount) {
		return Result{}, fmt.Errorf("%w: expected %d rows, got %d", ErrAssertionFailed, *op.ExpectedCount, res.Count)
	}
	return res, nil
}

func insertRow(ctx context.Context, tx *sql.Tx, table string, values map[string]interface{}, touched map[int64]struct{}) (Result, error) {
	if table == TableData {
		if values[ColMimeType] == MimePhone {
			if _, set := values[PhoneNormalized.Name()]; !set {
				if number, ok := values[PhoneNumber.Name()].(string); ok {
					values[PhoneNormalized.Name()] = NormalizeNumber(number)
				}
			}
		}
	}

	cols := sortedColumns(values)
	args := make([]interface{}, len(cols))
	for i, c := range cols {
		args[i] = values[c]
	}

	var stmt string
	if len(cols) == 0 {
		stmt = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", table)
	} else {
		stmt = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), placeholders(len(cols)))
	}

	r, err := tx.ExecContext(ctx, stmt, args...)
	if err != nil {
		return Result{}, mapDriverError(err)
	}
	id, err := r.LastInsertId()
	if err != nil {
		return Result{}, err
	}

	switch table {
	case TableRawContacts:
		touched[id] = struct{}{}
	case TableData:
		if owner, ok := toInt64(values[ColRawContactID]); ok {
			touched[owner] = struct{}{}
		}
	}
	return Result{ID: id, Count: 1}, nil
}

func updateRows(ctx context.Context, tx *sql.Tx, op Operation, values map[string]interface{}, touched map[int64]struct{}) (Result, error) {
	if len(values) == 0 {
		return Result{}, fmt.Errorf("%w: update without values", ErrInvalidOperation)
	}
	where, whereArgs, err := selectionClause(op)
	if err != nil {
		return Result{}, err
	}
	if where == "" {
		return Result{}, fmt.Errorf("%w: update without selection", ErrInvalidOperation)
	}

	cols := sortedColumns(values)
	set := make([]string, len(cols))
	args := make([]interface{}, 0, len(cols)+len(whereArgs))
	for i, c := range cols {
		set[i] = c + " = ?"
		args = append(args, values[c])
	}
	args = append(args, whereArgs...)

	r, err := tx.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET %s WHERE %s", op.Table, strings.Join(set, ", "), where),
		args...)
	if err != nil {
		return Result{}, mapDriverError(err)
	}
	n, err := r.RowsAffected()
	if err != nil {
		return Result{}, err
	}
	markSelection(op, touched)
	return Result{Count: n}, nil
}

func deleteRows(ctx context.Context, tx *sql.Tx, op Operation, touched map[int64]struct{}) (Result, error) {
	where, args, err := selectionClause(op)
	if err != nil {
		return Result{}, err
	}
	if where == "" {
		return Result{}, fmt.Errorf("%w: delete without selection", ErrInvalidOperation)
	}

	r, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s", op.Table, where), args...)
	if err != nil {
		return Result{}, mapDriverError(err)
	}
	n, err := r.RowsAffected()
	if err != nil {
		return Result{}, err
	}
	if op.Table == TableData {
		markSelection(op, touched)
	}
	return Result{Count: n}, nil
}

func countRows(ctx context.Context, tx *sql.Tx, op Operation) (Result, error) {
	where, args, err := selectionClause(op)
	if err != nil {
		return Result{}, err
	}
	stmt := "SELECT COUNT(*) FROM " + op.Table
	if where != "" {
		stmt += " WHERE " + where
	}

	var n int64
	if err := tx.QueryRowContext(ctx, stmt, args...).Scan(&n); err != nil {
		return Result{}, mapDriverError(err)
	}
	return Result{Count: n}, nil
}

func selectionClause(op Operation) (string, []interface{}, error) {
	var (
		where []string
		args  []interface{}
	)
	sel := op.Selection
	switch op.Table {
	case TableRawContacts:
		if sel.MimeType != "" {
			return "", nil, fmt.Errorf("%w: mime type selection on %s", ErrInvalidOperation, op.Table)
		}
		if sel.ContactID != nil {
			where = append(where, "_id = ?")
			args = append(args, *sel.ContactID)
		}
	case TableData:
		if sel.ContactID != nil {
			where = append(where, "raw_contact_id = ?")
			args = append(args, *sel.ContactID)
		}
		if sel.MimeType != "" {
			where = append(where, "mimetype = ?")
			args = append(args, sel.MimeType)
		}
	}
	return strings.Join(where, " AND "), args, nil
}

func markSelection(op Operation, touched map[int64]struct{}) {
	if op.Selection.ContactID != nil {
		touched[*op.Selection.ContactID] = struct{}{}
	}
}

// updateDisplayName derives the display name from the structured name, then
// the company, the first email and the first phone number, in that order.
func updateDisplayName(ctx context.Context, tx *sql.Tx, contactID int64) error {
	rows, err := tx.QueryContext(ctx,
		`SELECT mimetype, data1, data2, data3, data4, data5, data6 FROM data
		WHERE raw_contact_id = ? AND mimetype IN (?, ?, ?, ?)
		ORDER BY _id`,
		contactID, MimeName, MimeOrganization, MimeEmail, MimePhone)
	if err != nil {
		return fmt.Errorf("load display name sources: %w", mapDriverError(err))
	}

	candidates := make(map[string]string)
	for rows.Next() {
		var (
			mime string
			cols [6]sql.NullString
		)
		if err := rows.Scan(&mime, &cols[0], &cols[1], &cols[2], &cols[3], &cols[4], &cols[5]); err != nil {
			rows.Close()
			return fmt.Errorf("scan display name source: %w", err)
		}
		if _, seen := candidates[mime]; seen {
			continue
		}
		var name string
		if mime == MimeName {
			name = structuredDisplayName(cols)
		} else {
			name = strings.TrimSpace(cols[0].String)
		}
		if name != "" {
			candidates[mime] = name
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	var displayName interface{}
	for _, mime := range []string{MimeName, MimeOrganization, MimeEmail, MimePhone} {
		if name, ok := candidates[mime]; ok {
			displayName = name
			break
		}
	}

	if _, err := tx.ExecContext(ctx, "UPDATE raw_contacts SET display_name = ? WHERE _id = ?", displayName, contactID); err != nil {
		return fmt.Errorf("update display name: %w", mapDriverError(err))
	}
	return nil
}

// structuredDisplayName joins prefix, given, middle, family and suffix. An
// explicit display name in data1 wins.
func structuredDisplayName(cols [6]sql.NullString) string {
	if s := strings.TrimSpace(cols[0].String); s != "" {
		return s
	}
	var parts []string
	for _, i := range []int{3, 1, 4, 2, 5} {
		if s := strings.TrimSpace(cols[i].String); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

type sqlCursor struct {
	rows *sql.Rows
	row  Row
	err  error
}

func (c *sqlCursor) Next() bool {
	if c.err != nil || !c.rows.Next() {
		return false
	}

	var (
		row         Row
		displayName sql.NullString
		data        [NumDataColumns]sql.NullString
	)
	dest := []interface{}{&row.ContactID, &displayName, &row.MimeType}
	for i := range data {
		dest = append(dest, &data[i])
	}
	if err := c.rows.Scan(dest...); err != nil {
		c.err = fmt.Errorf("scan data row: %w", err)
		return false
	}
	row.DisplayName = nullString(displayName)
	for i := range data {
		row.Data[i] = nullString(data[i])
	}
	c.row = row
	return true
}

func (c *sqlCursor) Row() Row { return c.row }

func (c *sqlCursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.rows.Err()
}

func (c *sqlCursor) Close() error { return c.rows.Close() }

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// mapDriverError wraps SQLite constraint failures in ErrConstraint.
func mapDriverError(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%w: %v", ErrConstraint, err)
	}
	return err
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func sortedColumns(values map[string]interface{}) []string {
	cols := make([]string, 0, len(values))
	for c := range values {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

func sortedIDs(set map[int64]struct{}) []int64 {
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func toInt64(v interface{}) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case int:
		return int64(t), true
	case int32:
		return int64(t), true
	default:
		return 0, false
	}
}
