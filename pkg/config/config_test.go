package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
port: "9090"
store:
  driver: memory
pg:
  host: db
  port: 5432
  password: ${COORDINATOR_TEST_PG_PASSWORD}
auction:
  min_increment: 10
  first_bid_at_starting_price: true
goal:
  decision_window: 90s
gifts:
  - id: rose
    name: Rose
    icon_key: gifts/rose.png
    price: 10
`

func TestReadConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "coordinator_test.yaml"), []byte(sampleYAML), 0o644))
	t.Setenv("COORDINATOR_TEST_PG_PASSWORD", "s3cret")

	cfg, err := ReadConfig[Coordinator]("coordinator_test", dir)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, StoreMemory, cfg.Store.Driver)
	assert.Equal(t, "s3cret", cfg.PostgreSQL.Password)
	assert.Equal(t, int64(10), cfg.Auction.MinIncrement)
	assert.True(t, cfg.Auction.FirstBidAtStartingPrice)
	assert.Equal(t, 90*time.Second, cfg.Goal.DecisionWindow)
	require.Len(t, cfg.Gifts, 1)
	assert.Equal(t, int64(10), cfg.Gifts[0].Price)
}

func TestReadConfig_MissingFile(t *testing.T) {
	_, err := ReadConfig[Coordinator]("does_not_exist", t.TempDir())
	assert.Error(t, err)
}

func TestApplyDefaults(t *testing.T) {
	var cfg Coordinator
	cfg.ApplyDefaults()

	assert.Equal(t, StoreMemory, cfg.Store.Driver)
	assert.Equal(t, int64(1), cfg.Auction.MinIncrement)
	assert.False(t, cfg.Auction.FirstBidAtStartingPrice)
	assert.Equal(t, 60*time.Second, cfg.Goal.DecisionWindow)
	assert.Equal(t, "@every 5s", cfg.Sweeper.Spec)
	assert.Equal(t, "ops-alerts", cfg.Kafka.Topic)
}
