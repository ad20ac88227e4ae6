package postgres

import (
	"fmt"
	"net/url"
	"strings"
)

// BuildDSN renders the space-separated key=value DSN gorm's postgres
// driver expects. The password is escaped so values with spaces, quotes,
// or backslashes cannot break out of their key=value pair.
func BuildDSN(opts *Options) string {
	if opts == nil {
		return ""
	}

	escapedPassword := escapePostgresValue(opts.Password)

	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		opts.Host,
		opts.Port,
		opts.Username,
		escapedPassword,
		opts.Database,
		opts.SSLMode,
	)
}

// BuildURI renders the postgresql:// form of the same connection, with
// the password percent-encoded for the URI userinfo segment.
func BuildURI(opts *Options) string {
	if opts == nil {
		return ""
	}

	encodedPassword := url.QueryEscape(opts.Password)

	return fmt.Sprintf(
		"postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		opts.Username,
		encodedPassword,
		opts.Host,
		opts.Port,
		opts.Database,
		opts.SSLMode,
	)
}

// escapePostgresValue quotes a DSN value when it contains spaces, single
// quotes, or backslashes. Single quotes are doubled, backslashes doubled,
// and an empty value becomes ''.
func escapePostgresValue(value string) string {
	if value == "" {
		return "''"
	}

	needsQuoting := strings.ContainsAny(value, " '\\")

	if needsQuoting {
		escaped := strings.ReplaceAll(value, "'", "''")
		escaped = strings.ReplaceAll(escaped, "\\", "\\\\")
		return "'" + escaped + "'"
	}

	return value
}
