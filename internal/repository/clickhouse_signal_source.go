package repository

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strconv"
	"time"

	"Indicium/internal/domain/models"
	domrepo "Indicium/internal/domain/repository"
	"Indicium/internal/service/warehouse"
	pkgch "Indicium/pkg/clickhouse"
	applogger "Indicium/pkg/logger"
)

// CHSignalSource reads signals from a ClickHouse table or view with the warehouse column layout.
type CHSignalSource struct {
	db      *sql.DB
	table   string
	maxRows int
	l       *applogger.Logger
}

var _ domrepo.SignalSource = (*CHSignalSource)(nil)

func NewCHSignalSource(ch *pkgch.Client, table string, maxRows int) *CHSignalSource {
	return &CHSignalSource{db: ch.DB(), table: table, maxRows: maxRows}
}

// SetLogger injects a structured logger.
func (s *CHSignalSource) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHSignalSource) Name() string { return models.SourceClickHouse }

func (s *CHSignalSource) View() string { return s.table }

func (s *CHSignalSource) FetchSignals(ctx context.Context) ([]models.Signal, error) {
	q := fmt.Sprintf("SELECT * FROM %s ORDER BY signal_strength DESC, ticker ASC LIMIT %d", s.table, s.maxRows)
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		s.logError("clickhouse signals query error", err)
		return nil, &warehouse.UpstreamError{Op: "query", Retryable: warehouse.IsRetryable(err), Err: err}
	}
	defer rows.Close()

	fields, err := rows.Columns()
	if err != nil {
		return nil, &warehouse.UpstreamError{Op: "decode", Err: err}
	}

	var raw [][]interface{}
	for rows.Next() {
		vals := make([]interface{}, len(fields))
		ptrs := make([]interface{}, len(fields))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			s.logError("clickhouse signals scan error", err)
			return nil, &warehouse.UpstreamError{Op: "decode", Err: err}
		}
		for i, v := range vals {
			vals[i] = normalizeValue(v)
		}
		raw = append(raw, vals)
	}
	if err := rows.Err(); err != nil {
		s.logError("clickhouse signals rows error", err)
		return nil, &warehouse.UpstreamError{Op: "query", Retryable: warehouse.IsRetryable(err), Err: err}
	}
	if len(raw) == 0 {
		return nil, &warehouse.UpstreamError{Op: "query", Err: warehouse.ErrNoData}
	}

	signals, err := warehouse.MapRows(fields, raw)
	if err != nil {
		return nil, &warehouse.UpstreamError{Op: "decode", Err: err}
	}
	return signals, nil
}

func (s *CHSignalSource) logError(msg string, err error) {
	if s.l != nil {
		s.l.Error(msg, applogger.String("table", s.table), applogger.Error(err))
	}
}

// normalizeValue converts driver values to the string-or-nil cells the column mapper expects.
func normalizeValue(v interface{}) interface{} {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}

	switch x := rv.Interface().(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case sql.NullString:
		if !x.Valid {
			return nil
		}
		return x.String
	case sql.NullFloat64:
		if !x.Valid {
			return nil
		}
		return strconv.FormatFloat(x.Float64, 'f', -1, 64)
	}

	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10)
	}
	return fmt.Sprint(rv.Interface())
}
