package db

import "strings"

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ContainsPattern builds a LIKE/ILIKE argument matching s anywhere in the
// column. Wildcards typed by the caller match literally; pair it with
// ESCAPE '\' in the clause.
func ContainsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}
