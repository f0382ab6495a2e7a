// Package provider is the contact content store. It exposes the data-row
// table the contacts service reads and the batched operations it writes with.
package provider

import (
	"context"
	"errors"
	"strconv"
)

var (
	// ErrNotFound is returned when a queried entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConstraint is returned when a write violates a store constraint.
	ErrConstraint = errors.New("constraint violation")
	// ErrAssertionFailed is returned when a batch assertion does not hold.
	ErrAssertionFailed = errors.New("batch assertion failed")
	// ErrInvalidOperation is returned for malformed batch operations.
	ErrInvalidOperation = errors.New("invalid operation")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("provider closed")
)

// Provider is the contact content store.
type Provider interface {
	// Query returns the data rows matching q in ascending row order.
	Query(ctx context.Context, q Query) (Cursor, error)
	// LookupPhone returns the ids of contacts owning a phone number that
	// loosely matches phone. An empty phone matches nothing.
	LookupPhone(ctx context.Context, phone string) ([]int64, error)
	// OpenPhoto returns the primary photo blob of a contact, or ErrNotFound.
	OpenPhoto(ctx context.Context, contactID int64) ([]byte, error)
	// ApplyBatch applies ops atomically. Either every op succeeds or none
	// is visible.
	ApplyBatch(ctx context.Context, ops []Operation) ([]Result, error)
	Close() error
}

// Query selects data rows.
type Query struct {
	// MimeTypes restricts the row kinds. Empty selects every kind.
	MimeTypes []string
	// DisplayNamePrefix restricts rows to contacts whose display name starts
	// with the prefix.
	DisplayNamePrefix *string
	// ContactIDs restricts rows to the given contacts. A non-nil empty slice
	// selects nothing.
	ContactIDs []int64
}

// Row is one data row joined with its contact.
type Row struct {
	ContactID   int64
	DisplayName *string
	MimeType    string
	Data        [NumDataColumns]*string
}

// Text returns the text in column c, nil when the column is NULL.
func (r Row) Text(c Column) *string {
	if !c.valid() {
		return nil
	}
	return r.Data[c-1]
}

// Int returns column c as an integer. NULL and non-numeric values read as 0.
func (r Row) Int(c Column) int {
	s := r.Text(c)
	if s == nil {
		return 0
	}
	n, err := strconv.Atoi(*s)
	if err != nil {
		return 0
	}
	return n
}

// Set stores v in column c.
func (r *Row) Set(c Column, v *string) {
	if c.valid() {
		r.Data[c-1] = v
	}
}

// Cursor iterates query results. Callers must Close it.
type Cursor interface {
	Next() bool
	Row() Row
	Err() error
	Close() error
}

// SliceCursor is a Cursor over rows held in memory.
type SliceCursor struct {
	rows []Row
	pos  int
}

// NewSliceCursor returns a cursor positioned before rows[0].
func NewSliceCursor(rows []Row) *SliceCursor {
	return &SliceCursor{rows: rows, pos: -1}
}

func (c *SliceCursor) Next() bool {
	if c.pos+1 >= len(c.rows) {
		c.pos = len(c.rows)
		return false
	}
	c.pos++
	return true
}

func (c *SliceCursor) Row() Row     { return c.rows[c.pos] }
func (c *SliceCursor) Err() error   { return nil }
func (c *SliceCursor) Close() error { return nil }

// OpType is the kind of a batch operation.
type OpType int

const (
	OpInsert OpType = iota
	OpUpdate
	OpDelete
	// OpAssert checks the number of rows matching a selection.
	OpAssert
)

func (t OpType) String() string {
	switch t {
	case OpInsert:
		return "insert"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	case OpAssert:
		return "assert"
	default:
		return "unknown"
	}
}

// Selection narrows update, delete and assert operations.
type Selection struct {
	// ContactID matches raw_contact_id on the data table and _id on the
	// contacts table.
	ContactID *int64
	// MimeType matches the row kind. Data table only.
	MimeType string
}

// Operation is one step of a batch.
type Operation struct {
	Type      OpType
	Table     string
	Values    map[string]interface{}
	Selection Selection
	// ValueBackReferences maps a column to the index of an earlier insert
	// whose generated id becomes the column value.
	ValueBackReferences map[string]int
	// ExpectedCount fails the batch when the affected or matched row count
	// differs.
	ExpectedCount *int
}

// Result is the outcome of one operation.
type Result struct {
	// ID is the generated row id of an insert.
	ID int64
	// Count is the number of affected or matched rows.
	Count int64
}

// OpBuilder assembles an Operation.
type OpBuilder struct {
	op Operation
}

// NewInsert starts an insert into table.
func NewInsert(table string) *OpBuilder { return newBuilder(OpInsert, table) }

// NewUpdate starts an update of table.
func NewUpdate(table string) *OpBuilder { return newBuilder(OpUpdate, table) }

// NewDelete starts a delete from table.
func NewDelete(table string) *OpBuilder { return newBuilder(OpDelete, table) }

// NewAssert starts an assertion over table.
func NewAssert(table string) *OpBuilder { return newBuilder(OpAssert, table) }

func newBuilder(t OpType, table string) *OpBuilder {
	return &OpBuilder{op: Operation{
		Type:                t,
		Table:               table,
		Values:              make(map[string]interface{}),
		ValueBackReferences: make(map[string]int),
	}}
}

// WithValue sets a named column.
func (b *OpBuilder) WithValue(column string, v interface{}) *OpBuilder {
	b.op.Values[column] = v
	return b
}

// WithData sets a generic data column. A nil *string stores NULL.
func (b *OpBuilder) WithData(c Column, v interface{}) *OpBuilder {
	if s, ok := v.(*string); ok {
		if s == nil {
			v = nil
		} else {
			v = *s
		}
	}
	b.op.Values[c.Name()] = v
	return b
}

// WithValueBackReference sets column to the id generated by ops[index].
func (b *OpBuilder) WithValueBackReference(column string, index int) *OpBuilder {
	b.op.ValueBackReferences[column] = index
	return b
}

// WithContact selects rows of one contact.
func (b *OpBuilder) WithContact(id int64) *OpBuilder {
	b.op.Selection.ContactID = &id
	return b
}

// WithMimeType selects rows of one kind.
func (b *OpBuilder) WithMimeType(mime string) *OpBuilder {
	b.op.Selection.MimeType = mime
	return b
}

// WithExpectedCount requires exactly n rows to be affected or matched.
func (b *OpBuilder) WithExpectedCount(n int) *OpBuilder {
	b.op.ExpectedCount = &n
	return b
}

// Build returns the operation.
func (b *OpBuilder) Build() Operation {
	return b.op
}
