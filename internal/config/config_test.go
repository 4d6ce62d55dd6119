package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const minimalConfig = `
database:
  path: "./data/test.db"
hourglass:
  base_url: "https://hourglass.example.com"
  api_key: "test-key"
  service_offering: 510
`

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeFile(t, "config.yaml", minimalConfig)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.API.HTTP.Port)
	assert.Equal(t, "x-api-key", cfg.API.Auth.HeaderAPIKey)
	assert.Equal(t, "x-api-extra", cfg.API.Auth.HeaderExtra)
	assert.Equal(t, 10, cfg.Hourglass.TimeoutSeconds)
	assert.Equal(t, 1, cfg.Booking.MinAdvanceDays)
	assert.Equal(t, 365, cfg.Booking.MaxBookingDays)
	assert.Equal(t, 1800, cfg.Booking.CourseCacheTTLSecond)
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("TEST_HOURGLASS_KEY", "from-env")

	path := writeFile(t, "config.yaml", `
database:
  path: "./data/test.db"
hourglass:
  base_url: "https://hourglass.example.com"
  api_key: "${TEST_HOURGLASS_KEY}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Hourglass.APIKey)
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"missing database path", `
hourglass:
  base_url: "https://hourglass.example.com"
  api_key: "k"
`},
		{"missing hourglass url", `
database:
  path: "./x.db"
hourglass:
  api_key: "k"
`},
		{"placeholder api key", `
database:
  path: "./x.db"
hourglass:
  base_url: "https://hourglass.example.com"
  api_key: "YOUR_API_KEY_HERE"
`},
		{"notifications without token", minimalConfig + `
notifications:
  enabled: true
`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeFile(t, "config.yaml", tc.content)
			_, err := Load(path)
			require.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadDepartments(t *testing.T) {
	t.Run("empty path yields defaults", func(t *testing.T) {
		departments, err := LoadDepartments("")
		require.NoError(t, err)
		assert.Len(t, departments, 5)
	})

	t.Run("custom file", func(t *testing.T) {
		path := writeFile(t, "departments.yaml", `
departments:
  - name: "Platform"
    color: "#112233"
  - name: "SRE"
    color: "#445566"
`)
		departments, err := LoadDepartments(path)
		require.NoError(t, err)
		require.Len(t, departments, 2)
		assert.Equal(t, "Platform", departments[0].Name)
		assert.Equal(t, "#445566", departments[1].Color)
	})

	t.Run("empty list is an error", func(t *testing.T) {
		path := writeFile(t, "departments.yaml", `departments: []`)
		_, err := LoadDepartments(path)
		require.Error(t, err)
	})

	t.Run("nameless entry is an error", func(t *testing.T) {
		path := writeFile(t, "departments.yaml", `
departments:
  - color: "#112233"
`)
		_, err := LoadDepartments(path)
		require.Error(t, err)
	})
}
