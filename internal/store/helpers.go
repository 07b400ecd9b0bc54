package store

import "strings"

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike neutralizes LIKE metacharacters in user-supplied search input.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
