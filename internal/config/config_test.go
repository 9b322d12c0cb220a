package config

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(b byte) string {
	return base64.StdEncoding.EncodeToString([]byte(strings.Repeat(string(b), 32)))
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, warnings, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "data", cfg.Checkout.PayloadParam)
	assert.Equal(t, "PEN", cfg.Checkout.Currency)
	assert.Equal(t, 3*time.Second, cfg.Checkout.ClearDelay)
	assert.Equal(t, "hosted", cfg.Payment.Strategy)
	assert.Equal(t, "X-CSRFToken", cfg.Payment.CSRFHeader)
	assert.Equal(t, 15*time.Second, cfg.Payment.Timeout)
	assert.Equal(t, int64(600), cfg.Delivery.ShippingFeeMinor)
	assert.Len(t, cfg.Delivery.Stores, 2)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.False(t, cfg.Kafka.Enabled())
	assert.False(t, cfg.Redis.Enabled())
	assert.True(t, cfg.IsDevelopment())

	assert.Len(t, warnings, 2)
	assert.Len(t, cfg.Security.CSRFKey, 32)
	assert.True(t, cfg.Security.Generated)
	assert.Contains(t, cfg.SubmitDisabledReason(), "backend_url")
}

func TestLoad_Environment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CHECKOUT_SERVER_PORT", "9090")
	t.Setenv("CHECKOUT_PAYMENT_BACKEND_URL", "http://backend:8000")
	t.Setenv("CHECKOUT_PAYMENT_STRATEGY", "widget")
	t.Setenv("CHECKOUT_PAYMENT_TIMEOUT", "2s")
	t.Setenv("CHECKOUT_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("CHECKOUT_SECURITY_CSRF_KEY", key('a'))
	t.Setenv("CHECKOUT_SECURITY_SESSION_KEY", key('b'))
	t.Setenv("CHECKOUT_APP_ENV", "production")

	cfg, warnings, err := Load("")
	require.NoError(t, err)

	assert.Empty(t, warnings)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "widget", cfg.Payment.Strategy)
	assert.Equal(t, 2*time.Second, cfg.Payment.Timeout)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, []byte(strings.Repeat("a", 32)), cfg.Security.CSRFKey)
	assert.False(t, cfg.Security.Generated)
	assert.Empty(t, cfg.SubmitDisabledReason())
}

func TestLoad_ProductionWithoutKeysDisablesSubmit(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CHECKOUT_APP_ENV", "production")
	t.Setenv("CHECKOUT_PAYMENT_BACKEND_URL", "http://backend:8000")
	t.Setenv("CHECKOUT_SECURITY_CSRF_KEY", base64.StdEncoding.EncodeToString([]byte("short")))

	cfg, warnings, err := Load("")
	require.NoError(t, err)

	assert.NotEmpty(t, warnings)
	assert.Contains(t, cfg.SubmitDisabledReason(), "security keys")
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checkout.yaml")
	yaml := `
payment:
  backend_url: http://stub:8081
delivery:
  shipping_fee_minor: 900
  stores:
    - id: centro
      name: Tienda Centro
      address: Jr. de la Unión 500
database:
  driver: postgres
  host: db
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, _, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://stub:8081", cfg.Payment.BackendURL)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "db", cfg.Database.Host)

	dc := cfg.DeliveryConfig()
	assert.Equal(t, int64(900), dc.ShippingFeeMinor)
	require.Len(t, dc.Stores, 1)
	assert.Equal(t, "centro", dc.Stores[0].ID)
	assert.Len(t, dc.ShippingRequired, 6)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"strategy", map[string]string{"CHECKOUT_PAYMENT_STRATEGY": "pigeon"}},
		{"guard", map[string]string{"CHECKOUT_CHECKOUT_GUARD": "file"}},
		{"redis guard without redis", map[string]string{"CHECKOUT_CHECKOUT_GUARD": "redis"}},
		{"driver", map[string]string{"CHECKOUT_DATABASE_DRIVER": "oracle"}},
		{"negative fee", map[string]string{"CHECKOUT_DELIVERY_SHIPPING_FEE_MINOR": "-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, _, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
