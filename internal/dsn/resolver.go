// Copyright (c) 2025 MCProbe
// Licensed under the MIT License. See LICENSE file in the project root for details.

package dsn

import (
	"strings"
)

// DetectDBType detects the database type from a DSN string
func DetectDBType(dsn string) DBType {
	lower := strings.ToLower(dsn)

	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return DBTypePostgreSQL
	}
	if strings.HasPrefix(lower, "clickhouse://") {
		return DBTypeClickHouse
	}
	if strings.HasPrefix(lower, "mysql://") {
		return DBTypeMySQL
	}

	return DBTypeUnknown
}

// resolverFor returns the resolver for a DSN, or a ParseError for types the
// server under test does not speak.
func resolverFor(dsn string) (Resolver, error) {
	switch DetectDBType(dsn) {
	case DBTypePostgreSQL:
		return NewPostgreSQLResolver(), nil
	case DBTypeClickHouse:
		return NewClickHouseResolver(), nil
	case DBTypeMySQL:
		return nil, NewParseError(dsn, "MySQL is not supported by the database server", "use postgres:// or clickhouse://")
	default:
		return nil, NewParseError(dsn, "unknown database type", "use postgres:// or clickhouse://")
	}
}

// Parse parses a DSN string and returns normalized connection string
// This is the main entry point for DSN parsing
func Parse(dsn string) (string, error) {
	if dsn == "" {
		return "", NewParseError(dsn, "empty DSN", "provide a valid database connection string")
	}

	resolver, err := resolverFor(dsn)
	if err != nil {
		return "", err
	}

	info, err := resolver.Parse(dsn)
	if err != nil {
		return "", err
	}

	return resolver.Normalize(info)
}

// Validate validates a DSN string without normalizing it
func Validate(dsn string) error {
	if dsn == "" {
		return NewParseError(dsn, "empty DSN", "provide a valid database connection string")
	}

	resolver, err := resolverFor(dsn)
	if err != nil {
		return err
	}

	return resolver.Validate(dsn)
}

// ParseInfo parses a DSN string and returns detailed DSN info
// Useful for inspecting connection details
func ParseInfo(dsn string) (*DSNInfo, error) {
	if dsn == "" {
		return nil, NewParseError(dsn, "empty DSN", "provide a valid database connection string")
	}

	resolver, err := resolverFor(dsn)
	if err != nil {
		return nil, err
	}

	return resolver.Parse(dsn)
}
