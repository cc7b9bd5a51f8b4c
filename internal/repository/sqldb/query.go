package sqldb

import "strings"

// conditions collects the WHERE predicates of a dynamic query. Each entry is
// a parameterized fragment plus its arguments; filters the caller did not ask
// for are simply never added, so there are no "1 = 1" placeholders.
//
//	var where conditions
//	where.add("s.visibility = ?", "public")
//	if lang != "" {
//		where.add("s.language = ?", lang)
//	}
//	clause, args := where.build() // " WHERE s.visibility = ? AND s.language = ?"
type conditions struct {
	clauses []string
	args    []any
}

func (c *conditions) add(clause string, args ...any) {
	c.clauses = append(c.clauses, clause)
	c.args = append(c.args, args...)
}

// build renders the ANDed clause, with a leading " WHERE ", or "" when empty.
func (c *conditions) build() (string, []any) {
	if len(c.clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(c.clauses, " AND "), c.args
}

// assignments collects the SET list of a partial UPDATE.
type assignments struct {
	columns []string
	args    []any
}

func (a *assignments) set(column string, value any) {
	a.columns = append(a.columns, column+" = ?")
	a.args = append(a.args, value)
}

func (a *assignments) empty() bool {
	return len(a.columns) == 0
}

// build renders "col1 = ?, col2 = ?" and the matching arguments.
func (a *assignments) build() (string, []any) {
	return strings.Join(a.columns, ", "), a.args
}

// likePattern turns a user search term into a case-insensitive LIKE
// pattern matching the term anywhere. %, _ and the escape character itself
// are escaped so they match literally; queries pair it with ESCAPE '\'.
func likePattern(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(term)) + "%"
}
