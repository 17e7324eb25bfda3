package sqlgen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errx "github.com/proplens/server/internal/core/error"
)

func testSchema() *Schema {
	return NewSchema("v1", map[string][]string{
		"properties": {"id", "suburb", "state", "price", "property_type", "bedrooms", "bathrooms", "listed_at"},
	})
}

func TestValidateAcceptsReadOnlySelect(t *testing.T) {
	v := NewValidator(testSchema(), 4000)

	statements := []string{
		"SELECT suburb, AVG(price) AS avg_price, COUNT(*) AS property_count FROM properties WHERE state = 'VIC' GROUP BY suburb ORDER BY avg_price DESC;",
		"select * from properties limit 10",
		"SELECT p.suburb, p.price FROM properties p WHERE p.bedrooms >= 3",
		"SELECT suburb FROM public.properties AS p WHERE p.state = 'NSW'",
		"WITH ranked AS (SELECT suburb, price FROM properties) SELECT suburb, MAX(price) FROM ranked GROUP BY suburb",
		"SELECT suburb FROM properties WHERE property_type = 'house' AND price BETWEEN 500000 AND 900000",
	}

	for _, stmt := range statements {
		assert.NoError(t, v.Validate(stmt), "statement: %s", stmt)
	}
}

func TestValidateRejectsUnsafeKeywordsUnconditionally(t *testing.T) {
	v := NewValidator(testSchema(), 4000)

	statements := []string{
		"DELETE FROM properties",
		"DROP TABLE properties",
		"SELECT price FROM properties; DROP TABLE properties",
		"UPDATE properties SET price = 0",
		"INSERT INTO properties (suburb) VALUES ('x')",
		"TRUNCATE properties",
		"select price from properties where exists (select 1 from properties for update)",
	}

	for _, stmt := range statements {
		err := v.Validate(stmt)
		require.Error(t, err, "statement: %s", stmt)
		if !strings.Contains(err.Error(), "single statement") {
			assert.True(t, errx.IsUnconditional(err), "expected unconditional rejection for: %s", stmt)
		}
	}
}

func TestValidateUnsafeBypassesRetry(t *testing.T) {
	v := NewValidator(testSchema(), 4000)

	err := v.Validate("DELETE FROM properties WHERE state = 'VIC'")
	require.Error(t, err)
	assert.True(t, errx.IsUnconditional(err))
	assert.Equal(t, errx.KindSQLValidation, errx.KindOf(err))
}

func TestValidateKeywordInsideLiteralIsAllowed(t *testing.T) {
	v := NewValidator(testSchema(), 4000)

	err := v.Validate("SELECT suburb FROM properties WHERE suburb = 'delete me later'")
	assert.NoError(t, err)
}

func TestValidateRejectsUnknownTable(t *testing.T) {
	v := NewValidator(testSchema(), 4000)

	err := v.Validate("SELECT name FROM users")
	require.Error(t, err)
	assert.False(t, errx.IsUnconditional(err))
	assert.Contains(t, err.Error(), "unknown table")
}

func TestValidateRejectsUnknownColumn(t *testing.T) {
	v := NewValidator(testSchema(), 4000)

	err := v.Validate("SELECT salary FROM properties")
	require.Error(t, err)
	assert.False(t, errx.IsUnconditional(err))
	assert.Contains(t, err.Error(), "unknown column")
}

func TestValidateRejectsMultipleStatements(t *testing.T) {
	v := NewValidator(testSchema(), 4000)

	err := v.Validate("SELECT price FROM properties; SELECT suburb FROM properties")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "single statement")
}

func TestValidateTrailingSemicolonIsFine(t *testing.T) {
	v := NewValidator(testSchema(), 4000)

	assert.NoError(t, v.Validate("SELECT price FROM properties;"))
	assert.NoError(t, v.Validate("SELECT price FROM properties;   "))
}

func TestValidateRejectsEmptyAndOversized(t *testing.T) {
	v := NewValidator(testSchema(), 100)

	err := v.Validate("   ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")

	long := "SELECT price FROM properties WHERE suburb IN (" + strings.Repeat("'x',", 50) + "'x')"
	err = v.Validate(long)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maximum length")
}

func TestValidateRejectsNonSelect(t *testing.T) {
	v := NewValidator(testSchema(), 4000)

	err := v.Validate("EXPLAIN SELECT price FROM properties")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SELECT")
}

func TestValidateRejectsQuotedIdentifiers(t *testing.T) {
	v := NewValidator(testSchema(), 4000)

	err := v.Validate(`SELECT "price" FROM properties`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quoted")
}

func TestValidateCommentsAreStripped(t *testing.T) {
	v := NewValidator(testSchema(), 4000)

	assert.NoError(t, v.Validate("SELECT price FROM properties -- top listings"))
	assert.NoError(t, v.Validate("SELECT price /* all of them */ FROM properties"))
}

func TestMaskLiteralsAndComments(t *testing.T) {
	masked := maskLiteralsAndComments("SELECT 'drop table x' FROM properties -- delete")
	assert.NotContains(t, masked, "drop")
	assert.NotContains(t, masked, "delete")
	assert.Contains(t, masked, "FROM properties")

	masked = maskLiteralsAndComments("SELECT 'it''s fine' FROM properties")
	assert.NotContains(t, masked, "fine")
	assert.Contains(t, masked, "FROM properties")
}

func TestParseAllowlist(t *testing.T) {
	tables := ParseAllowlist("properties:suburb|price;sales:sold_at|amount")
	require.Len(t, tables, 2)
	assert.Equal(t, []string{"suburb", "price"}, tables["properties"])
	assert.Equal(t, []string{"sold_at", "amount"}, tables["sales"])

	assert.Empty(t, ParseAllowlist(""))
	assert.Empty(t, ParseAllowlist("garbage-without-colon"))
}

func TestSchemaDescribe(t *testing.T) {
	s := NewSchema("v1", map[string][]string{
		"properties": {"Suburb", "Price"},
	})

	assert.True(t, s.HasTable("Properties"))
	assert.True(t, s.HasColumn("PRICE"))
	assert.False(t, s.HasColumn("salary"))
	assert.Equal(t, "public.properties columns: suburb, price", s.Describe())
}
