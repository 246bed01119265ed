package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, DefaultTimezone, cfg.Scheduling.Timezone)
	assert.False(t, cfg.Scheduling.CronEnabled)
	assert.Equal(t, "0 2 * * *", cfg.Scheduling.CronSpec)
	assert.Equal(t, 1, cfg.Scheduling.LookaheadMonths)
	assert.Equal(t, 5*time.Minute, cfg.Scheduling.RunTimeout)
	assert.Equal(t, 10*time.Minute, cfg.Workload.CacheTTL)
	assert.Equal(t, 3, cfg.Downstream.MaxRetries)
	assert.Nil(t, cfg.CORS.AllowedOrigins)
}

func TestFromViperOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("ORG_TIMEZONE", "  ")
	v.Set("SCHEDULE_SYNC_LOOKAHEAD_MONTHS", -3)
	v.Set("SCHEDULE_SYNC_TIMEOUT", "not-a-duration")
	v.Set("ALLOWED_ORIGINS", "https://admin.example.com, ,http://localhost:3000")
	v.Set("JWT_ISSUER", "identity")

	cfg := fromViper(v)

	assert.Equal(t, DefaultTimezone, cfg.Scheduling.Timezone)
	assert.Zero(t, cfg.Scheduling.LookaheadMonths)
	assert.Equal(t, 5*time.Minute, cfg.Scheduling.RunTimeout)
	assert.Equal(t, []string{"https://admin.example.com", "http://localhost:3000"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, "identity", cfg.JWT.Issuer)
}

func TestParseDuration(t *testing.T) {
	assert.Equal(t, 90*time.Second, parseDuration("90s", time.Minute))
	assert.Equal(t, time.Minute, parseDuration("", time.Minute))
	assert.Equal(t, time.Minute, parseDuration("soon", time.Minute))
}
