package testdb

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestURLPrefersTestVariable(t *testing.T) {
	t.Setenv(EnvTestDatabaseURL, "postgres://a@localhost/test")
	t.Setenv(EnvDatabaseURL, "postgres://b@localhost/app")
	assert.Equal(t, "postgres://a@localhost/test", URL(nil))
}

func TestURLFallsBack(t *testing.T) {
	t.Setenv(EnvTestDatabaseURL, "")
	t.Setenv(EnvDatabaseURL, "postgres://b@localhost/app")
	assert.Equal(t, "postgres://b@localhost/app", URL(nil))
}

func TestURLEmpty(t *testing.T) {
	t.Setenv(EnvTestDatabaseURL, "")
	t.Setenv(EnvDatabaseURL, "")
	assert.Empty(t, URL(nil))
}

func TestIsCI(t *testing.T) {
	for _, name := range ciMarkers {
		t.Setenv(name, "")
	}
	assert.False(t, IsCI())

	t.Setenv("GITHUB_ACTIONS", "true")
	assert.True(t, IsCI())
}
