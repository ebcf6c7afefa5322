package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJob_IdentityKey(t *testing.T) {
	withID := Job{JobID: "j-1", Title: "Go Engineer", Source: "https://a/feed"}
	withoutID := Job{Title: "Go Engineer", Source: "https://a/feed"}

	assert.NotEqual(t, withID.IdentityKey(), withoutID.IdentityKey(),
		"an external ID must take precedence over the title")
	assert.Equal(t, withID.IdentityKey(), Job{JobID: "j-1", Source: "https://a/feed"}.IdentityKey(),
		"only ID and source contribute when an ID is present")
	assert.Equal(t, withoutID.IdentityKey(), Job{Title: "Go Engineer", Source: "https://a/feed"}.IdentityKey())

	assert.NotEqual(t, withoutID.IdentityKey(), Job{Title: "Go Engineer", Source: "https://b/feed"}.IdentityKey(),
		"the same title from different sources is a different posting")
}

func TestJob_IdentityKey_SeparatorSafe(t *testing.T) {
	// Field contents containing a separator must not collide with a
	// different field split.
	a := Job{Title: "a:b", Source: "c"}
	b := Job{Title: "a", Source: "b:c"}
	assert.NotEqual(t, a.IdentityKey(), b.IdentityKey())

	c := Job{JobID: "1:2", Source: "s"}
	d := Job{JobID: "1", Source: "2:s"}
	assert.NotEqual(t, c.IdentityKey(), d.IdentityKey())
}
