// Package postgres connects the SQL task store to PostgreSQL through the
// pgx stdlib driver and supplies the PostgreSQL dialect and error mapping.
package postgres
