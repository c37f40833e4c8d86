package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avaclient/internal/secret"
)

func TestConfig_ServerURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		server  string
		wantErr error
		host    string
	}{
		{
			name:   "https with port",
			server: "https://cluster.example:6443",
			host:   "cluster.example:6443",
		},
		{
			name:   "http",
			server: "http://localhost:8080",
			host:   "localhost:8080",
		},
		{
			name:    "missing",
			server:  "",
			wantErr: ErrMissingServer,
		},
		{
			name:    "relative",
			server:  "/api",
			wantErr: ErrInvalidServer,
		},
		{
			name:    "unsupported scheme",
			server:  "ftp://host",
			wantErr: ErrInvalidServer,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := &Config{Server: tt.server}
			u, err := cfg.ServerURL()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.host, u.Host)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	t.Run("minimal valid", func(t *testing.T) {
		t.Parallel()

		cfg := &Config{Server: "https://cluster.example:6443"}
		assert.NoError(t, cfg.Validate())
	})

	t.Run("cert without key", func(t *testing.T) {
		t.Parallel()

		cfg := &Config{
			Server: "https://cluster.example:6443",
			TLS:    TLSConfig{CertData: "cert"},
		}
		assert.ErrorIs(t, cfg.Validate(), ErrIncompleteIdentity)
	})

	t.Run("key without cert", func(t *testing.T) {
		t.Parallel()

		cfg := &Config{
			Server: "https://cluster.example:6443",
			TLS:    TLSConfig{KeyData: secret.Secret("key")},
		}
		assert.ErrorIs(t, cfg.Validate(), ErrIncompleteIdentity)
	})

	t.Run("cert and key together", func(t *testing.T) {
		t.Parallel()

		cfg := &Config{
			Server: "https://cluster.example:6443",
			TLS:    TLSConfig{CertData: "cert", KeyData: secret.Secret("key")},
		}
		assert.NoError(t, cfg.Validate())
	})

	t.Run("non-positive qps", func(t *testing.T) {
		t.Parallel()

		cfg := &Config{
			Server:    "https://cluster.example:6443",
			RateLimit: &RateLimitConfig{QPS: 0},
		}
		assert.Error(t, cfg.Validate())
	})
}

func TestDuration_YAML(t *testing.T) {
	t.Parallel()

	var d Duration
	require.NoError(t, d.UnmarshalYAML(func(v interface{}) error {
		*(v.(*string)) = "1h30m"
		return nil
	}))
	assert.Equal(t, 90*time.Minute, d.Duration())

	out, err := d.MarshalYAML()
	require.NoError(t, err)
	assert.Equal(t, "1h30m0s", out)
}

func TestDuration_JSON(t *testing.T) {
	t.Parallel()

	var d Duration
	require.NoError(t, d.UnmarshalJSON([]byte(`"30s"`)))
	assert.Equal(t, 30*time.Second, d.Duration())

	require.NoError(t, d.UnmarshalJSON([]byte(`null`)))
	assert.Equal(t, time.Duration(0), d.Duration())

	require.Error(t, d.UnmarshalJSON([]byte(`"bogus"`)))
	require.Error(t, d.UnmarshalJSON([]byte(`30`)), "bare numbers are not durations")
}
