package featureflags

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnabled(t *testing.T) {
	assert.Equal(t, "FLAG_EXPOSE_UPSTREAM_ERRORS", EnvKey("expose-upstream_errors"))

	t.Setenv("FLAG_EXPOSE_UPSTREAM_ERRORS", "")
	assert.False(t, Enabled("expose_upstream_errors"))

	for _, v := range []string{"1", "true", "YES", " on "} {
		t.Setenv("FLAG_EXPOSE_UPSTREAM_ERRORS", v)
		assert.True(t, Enabled("expose_upstream_errors"), v)
	}

	t.Setenv("FLAG_EXPOSE_UPSTREAM_ERRORS", "nope")
	assert.False(t, Enabled("expose_upstream_errors"))
}
