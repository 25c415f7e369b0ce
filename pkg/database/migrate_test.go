package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-health-api/pkg/config"
)

func TestEmbeddedMigrationsAreOrdered(t *testing.T) {
	found, err := source().FindMigrations()
	require.NoError(t, err)
	require.Len(t, found, 3)

	assert.Equal(t, "0001_reference_data.sql", found[0].Id)
	assert.Equal(t, "0002_health_reports.sql", found[1].Id)
	assert.Equal(t, "0003_risk_and_actions.sql", found[2].Id)
	for _, m := range found {
		assert.NotEmpty(t, m.Up, m.Id)
		assert.NotEmpty(t, m.Down, m.Id)
	}
}

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "health", SSLMode: "disable"})
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=health sslmode=disable application_name=health-api", dsn)
}
