package sqlgen

import (
	"fmt"
	"regexp"
	"strings"

	errx "github.com/proplens/server/internal/core/error"
)

// forbidden lists every data-modifying, schema-altering, or session-control
// keyword. Matching any of them rejects the statement unconditionally: this
// gate is independent of the retry budget and is never relaxed.
var forbidden = regexp.MustCompile(`\b(insert|update|delete|drop|alter|create|truncate|grant|revoke|merge|copy|vacuum|reindex|call|do|execute|set|reset|listen|notify|refresh|lock|prepare|deallocate|savepoint|rollback|commit|begin|analyze|cluster|discard)\b`)

var (
	identPattern    = regexp.MustCompile(`[a-z_][a-z0-9_]*`)
	tableRefPattern = regexp.MustCompile(`\b(?:from|join)\s+(?:public\.)?([a-z_][a-z0-9_]*)(?:\s+(?:as\s+)?([a-z_][a-z0-9_]*))?`)
	aliasPattern    = regexp.MustCompile(`\bas\s+([a-z_][a-z0-9_]*)`)
	ctePattern      = regexp.MustCompile(`\b([a-z_][a-z0-9_]*)\s+as\s*\(`)
)

// builtins are SQL keywords, builtin functions, and type names that may
// appear in a statement without being schema identifiers.
var builtins = map[string]bool{}

func init() {
	for _, w := range strings.Fields(`
		select from where group by order having limit offset as and or not
		in is null like ilike between distinct on asc desc join inner left
		right full outer cross union intersect except all case when then
		else end with exists any some cast extract interval using natural
		lateral fetch rows only row first last nulls true false unknown
		similar escape symmetric public
		count sum avg min max round coalesce nullif greatest least abs
		ceil ceiling floor power sqrt mod length lower upper substring
		substr trim ltrim rtrim replace concat position lpad rpad
		to_char to_date to_number to_timestamp date_part date_trunc now
		current_date current_timestamp age justify_days
		percentile_cont percentile_disc within filter over partition
		row_number rank dense_rank lag lead ntile string_agg array_agg
		bool_and bool_or stddev stddev_pop stddev_samp variance var_pop
		var_samp corr covar_pop covar_samp
		year month day week quarter
		text integer int bigint smallint numeric decimal boolean date
		timestamp timestamptz time double precision real float varchar
		char`) {
		builtins[w] = true
	}
}

// Validator statically checks a candidate statement before it can reach the
// database: single read-only SELECT, within the length cap, referencing only
// allowlisted tables and columns.
type Validator struct {
	schema *Schema
	maxLen int
}

func NewValidator(schema *Schema, maxStatementLength int) *Validator {
	if maxStatementLength <= 0 {
		maxStatementLength = 4000
	}
	return &Validator{schema: schema, maxLen: maxStatementLength}
}

func (v *Validator) Validate(stmt string) error {
	s := strings.TrimSpace(stmt)
	if s == "" {
		return errx.Validation("empty statement")
	}
	if len(s) > v.maxLen {
		return errx.Validation(fmt.Sprintf("statement exceeds the maximum length of %d bytes", v.maxLen))
	}
	if strings.Contains(s, `"`) {
		return errx.Validation("quoted identifiers are not allowed")
	}

	masked := maskLiteralsAndComments(s)

	if i := strings.IndexByte(masked, ';'); i >= 0 && strings.TrimSpace(masked[i+1:]) != "" {
		return errx.Validation("only a single statement is allowed")
	}
	masked = strings.TrimSuffix(strings.TrimSpace(masked), ";")

	lower := strings.ToLower(masked)

	if kw := forbidden.FindString(lower); kw != "" {
		return errx.Unsafe(fmt.Sprintf("statement contains disallowed keyword %q; only read-only queries may run", strings.ToUpper(kw)))
	}

	first := firstWord(lower)
	if first != "select" && first != "with" {
		return errx.Validation("statement must be a single SELECT query")
	}

	aliases, err := v.checkTables(lower)
	if err != nil {
		return err
	}

	return v.checkIdentifiers(lower, aliases)
}

// checkTables verifies every FROM/JOIN target against the allowlist and
// collects table and column aliases so identifier checking can skip them.
func (v *Validator) checkTables(lower string) (map[string]bool, error) {
	aliases := make(map[string]bool)

	// CTE names act as tables for the rest of the statement
	for _, m := range ctePattern.FindAllStringSubmatch(lower, -1) {
		if !builtins[m[1]] {
			aliases[m[1]] = true
		}
	}

	for _, m := range tableRefPattern.FindAllStringSubmatch(lower, -1) {
		table := m[1]
		if !v.schema.HasTable(table) && !aliases[table] {
			return nil, errx.Validation(fmt.Sprintf("unknown table %q; allowed tables: %s", table, v.tableNames()))
		}
		if alias := m[2]; alias != "" && !builtins[alias] {
			aliases[alias] = true
		}
	}

	for _, m := range aliasPattern.FindAllStringSubmatch(lower, -1) {
		aliases[m[1]] = true
	}

	return aliases, nil
}

// checkIdentifiers rejects any identifier that is not a builtin, an
// allowlisted table or column, or a declared alias.
func (v *Validator) checkIdentifiers(lower string, aliases map[string]bool) error {
	for _, ident := range identPattern.FindAllString(lower, -1) {
		if builtins[ident] || aliases[ident] {
			continue
		}
		if v.schema.HasTable(ident) || v.schema.HasColumn(ident) {
			continue
		}
		return errx.Validation(fmt.Sprintf("unknown column or identifier %q; it is not in the schema allowlist", ident))
	}
	return nil
}

func (v *Validator) tableNames() string {
	names := make([]string, 0, len(v.schema.Tables))
	for t := range v.schema.Tables {
		names = append(names, t)
	}
	return strings.Join(names, ", ")
}

// maskLiteralsAndComments blanks string literal contents and strips SQL
// comments so keyword and identifier scanning cannot be fooled by quoted
// text, while byte offsets stay stable.
func maskLiteralsAndComments(s string) string {
	out := []byte(s)
	for i := 0; i < len(out); i++ {
		switch {
		case out[i] == '\'':
			for i++; i < len(out); i++ {
				if out[i] == '\'' {
					// doubled quote is an escaped quote inside the literal
					if i+1 < len(out) && out[i+1] == '\'' {
						out[i], out[i+1] = ' ', ' '
						i++
						continue
					}
					break
				}
				out[i] = ' '
			}
		case out[i] == '-' && i+1 < len(out) && out[i+1] == '-':
			for ; i < len(out) && out[i] != '\n'; i++ {
				out[i] = ' '
			}
		case out[i] == '/' && i+1 < len(out) && out[i+1] == '*':
			for ; i < len(out); i++ {
				if out[i] == '*' && i+1 < len(out) && out[i+1] == '/' {
					out[i], out[i+1] = ' ', ' '
					i++
					break
				}
				out[i] = ' '
			}
		}
	}
	return string(out)
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
