package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// contextKeys are the detail keys copied from a typed error into its log
// fields, so a rejected transition can be traced to its shipment.
var contextKeys = []string{"step", "shipment_id", "settlement_id", "earning_id", "from", "to"}

// ErrorDump is the log-side view of an error chain.
type ErrorDump struct {
	TopMessage string
	Code       Code
	HTTPStatus int
	Retryable  bool
	Chain      []string
	Context    map[string]any

	PGCode       string
	PGConstraint string
	PGTable      string
	PGColumn     string
	PGDetail     string
	PGMessage    string
}

// Dump walks err (including errors.Join branches) and collects what the
// request log needs.
func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	d := ErrorDump{TopMessage: err.Error()}

	if typed := As(err); typed != nil {
		meta := MetadataFor(typed.Code())
		d.Code = typed.Code()
		d.HTTPStatus = meta.HTTPStatus
		d.Retryable = meta.Retryable
		if details, ok := typed.Details().(map[string]any); ok {
			for _, key := range contextKeys {
				if v, ok := details[key]; ok {
					if d.Context == nil {
						d.Context = make(map[string]any)
					}
					d.Context[key] = v
				}
			}
		}
	}

	queue := []error{err}
	for len(queue) > 0 {
		e := queue[0]
		queue = queue[1:]
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
		switch u := e.(type) {
		case interface{ Unwrap() []error }:
			queue = append(queue, u.Unwrap()...)
		case interface{ Unwrap() error }:
			if next := u.Unwrap(); next != nil {
				queue = append(queue, next)
			}
		}
	}

	d.capturePG(err)
	return d
}

func (d *ErrorDump) capturePG(err error) {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		d.PGCode, d.PGConstraint = pgxErr.Code, pgxErr.ConstraintName
		d.PGTable, d.PGColumn = pgxErr.TableName, pgxErr.ColumnName
		d.PGDetail, d.PGMessage = pgxErr.Detail, pgxErr.Message
		return
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		d.PGCode, d.PGConstraint = string(pqErr.Code), pqErr.Constraint
		d.PGTable, d.PGColumn = pqErr.Table, pqErr.Column
		d.PGDetail, d.PGMessage = pqErr.Detail, pqErr.Message
	}
}

// Fields flattens the dump for structured logging; empty values are dropped.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{
		"error":       d.TopMessage,
		"error_chain": d.Chain,
	}
	if d.Code != "" {
		fields["error_code"] = d.Code
	}
	for key, value := range map[string]string{
		"pg_code":       d.PGCode,
		"pg_constraint": d.PGConstraint,
		"pg_table":      d.PGTable,
		"pg_column":     d.PGColumn,
		"pg_detail":     d.PGDetail,
		"pg_message":    d.PGMessage,
	} {
		if value != "" {
			fields[key] = value
		}
	}
	for key, value := range d.Context {
		fields[key] = value
	}
	return fields
}
