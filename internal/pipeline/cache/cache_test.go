package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"Average price in  Melbourne":    "average price in melbourne",
		"  AVERAGE PRICE IN MELBOURNE  ": "average price in melbourne",
		"average\tprice\nin melbourne":   "average price in melbourne",
		"":                               "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in))
	}
}

func TestKeyIsDeterministicAndNamespaced(t *testing.T) {
	c := New(nil, "v1")

	k1 := c.Key(NSSimilarity, "Average price in Melbourne")
	k2 := c.Key(NSSimilarity, "average  PRICE in melbourne")
	assert.Equal(t, k1, k2, "normalized inputs must share a key")

	assert.NotEqual(t, k1, c.Key(NSRewrite, "Average price in Melbourne"),
		"namespaces must not collide")
	assert.Contains(t, k1, "cache:similarity:")
}

func TestKeyChangesWithSchemaVersion(t *testing.T) {
	v1 := New(nil, "v1")
	v2 := New(nil, "v2")

	assert.NotEqual(t,
		v1.Key(NSSimilarity, "same question"),
		v2.Key(NSSimilarity, "same question"),
		"bumping the schema version must invalidate every key")
}

func TestNilClientFailsOpen(t *testing.T) {
	ctx := context.Background()
	c := New(nil, "v1")

	val, ok := c.Get(ctx, NSSimilarity, "anything")
	assert.False(t, ok)
	assert.Empty(t, val)

	// must not panic
	c.Set(ctx, NSSimilarity, "anything", "value", time.Minute)

	var out []string
	assert.False(t, c.GetJSON(ctx, NSSchema, "anything", &out))
	c.SetJSON(ctx, NSSchema, "anything", []string{"a"}, time.Minute)
}

func TestNilCacheFailsOpen(t *testing.T) {
	var c *Cache

	_, ok := c.Get(context.Background(), NSRewrite, "anything")
	assert.False(t, ok)
	c.Set(context.Background(), NSRewrite, "anything", "value", time.Minute)
}
