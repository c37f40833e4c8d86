package auth

import (
	"context"
	"fmt"
	"time"

	vaultapi "github.com/hashicorp/vault/api"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/avaclient/internal/config"
	"github.com/vyrodovalexey/avaclient/internal/secret"
)

// VaultTokenSource obtains client tokens by performing a Vault AppRole login.
// The issued token's lease duration drives the refresh schedule.
type VaultTokenSource struct {
	client    *vaultapi.Client
	mountPath string
	roleID    string
	secretID  secret.Secret
	logger    *zap.Logger
}

// NewVaultTokenSource creates a token source from configuration.
func NewVaultTokenSource(cfg *config.VaultConfig, logger *zap.Logger) (*VaultTokenSource, error) {
	if cfg == nil {
		return nil, newConfigError("vault", "configuration is required")
	}
	if cfg.Address == "" {
		return nil, newConfigError("vault.address", "address is required")
	}
	if cfg.RoleID == "" {
		return nil, newConfigError("vault.roleId", "role ID is required")
	}
	if cfg.SecretID.IsZero() {
		return nil, newConfigError("vault.secretId", "secret ID is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	vaultConfig := vaultapi.DefaultConfig()
	vaultConfig.Address = cfg.Address

	client, err := vaultapi.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	mountPath := cfg.MountPath
	if mountPath == "" {
		mountPath = "approle"
	}

	return &VaultTokenSource{
		client:    client,
		mountPath: mountPath,
		roleID:    cfg.RoleID,
		secretID:  cfg.SecretID,
		logger:    logger,
	}, nil
}

// Token implements TokenSource.
func (s *VaultTokenSource) Token(ctx context.Context) (*Token, error) {
	loginPath := fmt.Sprintf("auth/%s/login", s.mountPath)

	resp, err := s.client.Logical().WriteWithContext(ctx, loginPath, map[string]interface{}{
		"role_id":   s.roleID,
		"secret_id": s.secretID.Value(),
	})
	if err != nil {
		return nil, fmt.Errorf("vault approle login failed: %w", err)
	}
	if resp == nil || resp.Auth == nil || resp.Auth.ClientToken == "" {
		return nil, ErrEmptyToken
	}

	var expiresAt time.Time
	if resp.Auth.LeaseDuration > 0 {
		expiresAt = time.Now().Add(time.Duration(resp.Auth.LeaseDuration) * time.Second)
	}

	s.logger.Debug("vault approle login succeeded",
		zap.Int("leaseDurationSeconds", resp.Auth.LeaseDuration),
		zap.Bool("renewable", resp.Auth.Renewable),
	)

	return &Token{
		Value:     secret.Secret(resp.Auth.ClientToken),
		ExpiresAt: expiresAt,
	}, nil
}
