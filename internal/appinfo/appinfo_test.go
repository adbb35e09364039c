package appinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvironment(t *testing.T) {
	tests := []struct {
		environment string
		goEnv       string
		want        string
	}{
		{"", "", "development"},
		{"", "prod", "production"},
		{"Staging", "production", "staging"},
		{"", "testing", "test"},
		{"", "canary", "canary"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Setenv("ENVIRONMENT", tt.environment)
			t.Setenv("GO_ENV", tt.goEnv)
			assert.Equal(t, tt.want, GetEnvironment())
		})
	}
}

func TestGetVersionPrefersEnvironment(t *testing.T) {
	t.Setenv("VERSION", "")
	t.Setenv("APP_VERSION", "1.4.2")
	assert.Equal(t, "1.4.2", GetVersion())
	assert.Equal(t, "badgehub/1.4.2", UserAgent())

	t.Setenv("VERSION", "2.0.0")
	assert.Equal(t, "2.0.0", GetVersion())
}
