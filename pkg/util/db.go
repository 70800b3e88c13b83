package util

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	ormdriver "github.com/faciam-dev/goquent/orm/driver"
)

// UnsupportedDialect is returned when a driver has no corresponding goquent dialect.
type UnsupportedDialect struct{ Driver string }

func (UnsupportedDialect) Placeholder(int) string { return "?" }

func (UnsupportedDialect) QuoteIdent(ident string) string { return ident }

// DetectDriver returns the driver name based on the DSN scheme.
// Supported schemes: mysql and postgres/postgresql.
func DetectDriver(dsn string) (string, error) {
	parsedURL, err := url.Parse(dsn)
	if err != nil {
		return "", err
	}
	switch parsedURL.Scheme {
	case "postgres", "postgresql":
		return "postgres", nil
	case "mysql":
		return "mysql", nil
	default:
		return "", fmt.Errorf("unknown scheme: %s", parsedURL.Scheme)
	}
}

// DriverDSN strips the mysql:// scheme which go-sql-driver does not accept.
func DriverDSN(driver, dsn string) string {
	if driver == "mysql" {
		return strings.TrimPrefix(dsn, "mysql://")
	}
	return dsn
}

// DialectFromDriver returns the goquent dialect corresponding to a driver.
func DialectFromDriver(d string) ormdriver.Dialect {
	switch d {
	case "postgres":
		return ormdriver.PostgresDialect{}
	case "mysql":
		return ormdriver.MySQLDialect{}
	default:
		return UnsupportedDialect{Driver: d}
	}
}

// Rebind rewrites ? placeholders to $n for postgres.
func Rebind(driver, q string) string {
	if driver != "postgres" {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ILike returns a case-insensitive LIKE condition comparing col with the
// placeholder ph (for example "?" or ":s").
func ILike(driver, col, ph string) string {
	if driver == "postgres" {
		return col + " ILIKE " + ph
	}
	return "LOWER(" + col + ") LIKE LOWER(" + ph + ")"
}
