package sql

import (
	"errors"
	"regexp"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgUndefinedColumn   = "42703"
	pgUniqueViolation   = "23505"
	mysqlBadFieldError  = 1054
	mysqlDuplicateEntry = 1062
	maxDroppedColumns   = 5
)

var (
	pgColumnPattern     = regexp.MustCompile(`column "([^"]+)"`)
	mysqlColumnPattern  = regexp.MustCompile(`Unknown column '([^']+)'`)
	sqliteColumnPattern = regexp.MustCompile(`(?:no such column|has no column named):? ([A-Za-z0-9_."]+)`)
)

// unknownColumn extracts the column name from an "unknown column" error of any supported backend.
func unknownColumn(err error) (string, bool) {
	if err == nil {
		return "", false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code != pgUndefinedColumn {
			return "", false
		}
		if m := pgColumnPattern.FindStringSubmatch(pgErr.Message); m != nil {
			return bareColumn(m[1]), true
		}
		return "", false
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		if myErr.Number != mysqlBadFieldError {
			return "", false
		}
		if m := mysqlColumnPattern.FindStringSubmatch(myErr.Message); m != nil {
			return bareColumn(m[1]), true
		}
		return "", false
	}

	// sqlite 驱动只暴露错误文本
	if m := sqliteColumnPattern.FindStringSubmatch(err.Error()); m != nil {
		return bareColumn(m[1]), true
	}
	return "", false
}

func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateEntry
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// bareColumn strips table qualifiers and quoting: generations.x -> x.
func bareColumn(name string) string {
	name = strings.Trim(name, `"`+"`")
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		name = name[idx+1:]
	}
	return strings.Trim(name, `"`+"`")
}
