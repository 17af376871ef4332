package sqlstore

import (
	"strconv"
	"strings"

	"github.com/pressly/goose/v3"
)

// Dialect captures what differs between the SQL engines behind TaskStore.
type Dialect struct {
	// Name selects the embedded migration directory.
	Name string
	// Goose is the migration dialect.
	Goose goose.Dialect
	// Greatest is the SQL function returning the largest of its arguments.
	Greatest string
	// Rebind rewrites '?' placeholders into the engine's syntax.
	Rebind func(query string) string
	// MapError translates driver errors: duplicate keys wrap store.ErrDuplicate,
	// everything else store.ErrUnavailable.
	MapError func(err error) error
}

// KeepQuestionMarks leaves '?' placeholders untouched.
func KeepQuestionMarks(query string) string {
	return query
}

// DollarPlaceholders rewrites '?' into $1, $2, ... Queries in this
// package never contain literal question marks.
func DollarPlaceholders(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
