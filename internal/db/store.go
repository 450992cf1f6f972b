package db

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/fouezkebiche/memoire-projet/internal/remote"
)

var identRegex = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// TableName maps an entity type such as "infrastructure.line" to its table.
func TableName(entityType string) string {
	return strings.ReplaceAll(entityType, ".", "_")
}

// FetchEntities implements remote.Client on top of the SQL store.
// Relational columns come back as bare ids.
func (db *DB) FetchEntities(ctx context.Context, entityType string, fields []string, filter remote.Filter) ([]remote.Record, error) {
	query, args, err := buildSelect(entityType, fields, filter)
	if err != nil {
		return nil, err
	}

	rows, err := db.conn.QueryxContext(ctx, db.conn.Rebind(query), args...)
	if err != nil {
		return nil, classify(entityType, err)
	}
	defer rows.Close()

	var records []remote.Record
	for rows.Next() {
		rec := make(map[string]any)
		if err := rows.MapScan(rec); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", entityType, err)
		}
		for k, v := range rec {
			if b, ok := v.([]byte); ok {
				rec[k] = string(b)
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(entityType, err)
	}

	db.log.WithFields(logrus.Fields{
		"table":   TableName(entityType),
		"records": len(records),
	}).Debug("fetched records")

	return records, nil
}

// buildSelect compiles a filter into a parameterised SELECT with '?'
// placeholders. Identifiers are whitelisted since they cannot be bound.
func buildSelect(entityType string, fields []string, filter remote.Filter) (string, []any, error) {
	if err := filter.Validate(); err != nil {
		return "", nil, err
	}

	table := TableName(entityType)
	if !identRegex.MatchString(table) {
		return "", nil, &remote.ValidationError{Reason: fmt.Sprintf("invalid entity type %q", entityType)}
	}

	cols := []string{`"id"`}
	for _, f := range fields {
		if f == "id" {
			continue
		}
		if !identRegex.MatchString(f) {
			return "", nil, &remote.ValidationError{Field: f, Reason: "invalid field name"}
		}
		cols = append(cols, `"`+f+`"`)
	}

	var (
		where []string
		args  []any
	)
	for _, c := range filter {
		if !identRegex.MatchString(c.Field) {
			return "", nil, &remote.ValidationError{Field: c.Field, Reason: "invalid field name"}
		}
		col := `"` + c.Field + `"`

		if c.Op.Multi() {
			values, _ := remote.ListValues(c.Value)
			if len(values) == 0 {
				if c.Op == remote.OpIn {
					where = append(where, "1 = 0")
				}
				continue
			}
			placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
			sqlOp := "IN"
			if c.Op == remote.OpNotIn {
				sqlOp = "NOT IN"
			}
			where = append(where, fmt.Sprintf("%s %s (%s)", col, sqlOp, placeholders))
			args = append(args, values...)
			continue
		}

		sqlOp := string(c.Op)
		if c.Op == remote.OpNe {
			sqlOp = "<>"
		}
		where = append(where, fmt.Sprintf("%s %s ?", col, sqlOp))
		args = append(args, c.Value)
	}

	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), table)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += ` ORDER BY "id"`
	return query, args, nil
}

// classify turns driver errors about unknown tables or columns into
// validation errors. Everything else is a transport failure.
func classify(entityType string, err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "no such column") || strings.Contains(msg, "no such table") ||
		strings.Contains(msg, "does not exist") {
		return &remote.ValidationError{Reason: fmt.Sprintf("%s: %v", entityType, err)}
	}
	return &remote.TransportError{Op: "query " + TableName(entityType), Err: err}
}
