package secret

import (
	"context"
	"fmt"
	"log/slog"
	"path"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/fluxtrade/keymgr/pkg/idx"
)

// VaultStore keeps secret material in a HashiCorp Vault KV v2 mount.
// References are random path segments under the configured prefix, so a
// leaked reference discloses nothing about the exchange or key.
type VaultStore struct {
	client *vaultapi.Client
	mount  string
	prefix string
	logger *slog.Logger
}

type VaultConfig struct {
	Address string
	Token   string
	Mount   string // KV v2 mount, e.g. "secret"
	Prefix  string // path prefix under the mount, e.g. "exchange-keys"
}

func NewVaultStore(cfg VaultConfig, logger *slog.Logger) (*VaultStore, error) {
	apiCfg := vaultapi.DefaultConfig()
	if cfg.Address != "" {
		apiCfg.Address = cfg.Address
	}

	client, err := vaultapi.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("creating vault client: %w", err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}

	mount := cfg.Mount
	if mount == "" {
		mount = "secret"
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "exchange-keys"
	}

	return &VaultStore{
		client: client,
		mount:  mount,
		prefix: prefix,
		logger: logger,
	}, nil
}

// CheckHealth reports whether the vault is reachable and unsealed.
func (s *VaultStore) CheckHealth(ctx context.Context) error {
	health, err := s.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if health.Sealed {
		return fmt.Errorf("%w: vault is sealed", ErrUnavailable)
	}
	return nil
}

func (s *VaultStore) CreateSecret(ctx context.Context, plaintext string) (string, error) {
	ref := idx.New().String()

	_, err := s.client.KVv2(s.mount).Put(ctx, s.secretPath(ref), map[string]any{
		"secret": plaintext,
	})
	if err != nil {
		return "", fmt.Errorf("%w: writing secret: %v", ErrUnavailable, err)
	}

	s.logger.Debug("secret stored", "ref", ref)
	return ref, nil
}

func (s *VaultStore) FetchSecret(ctx context.Context, ref string) (string, error) {
	kv, err := s.client.KVv2(s.mount).Get(ctx, s.secretPath(ref))
	if err != nil {
		return "", fmt.Errorf("%w: reading secret: %v", ErrUnavailable, err)
	}
	if kv == nil || kv.Data == nil {
		return "", ErrNotFound
	}

	plaintext, ok := kv.Data["secret"].(string)
	if !ok {
		return "", ErrNotFound
	}
	return plaintext, nil
}

func (s *VaultStore) DestroySecret(ctx context.Context, ref string) error {
	if err := s.client.KVv2(s.mount).DeleteMetadata(ctx, s.secretPath(ref)); err != nil {
		return fmt.Errorf("%w: destroying secret: %v", ErrUnavailable, err)
	}
	s.logger.Debug("secret destroyed", "ref", ref)
	return nil
}

func (s *VaultStore) secretPath(ref string) string {
	return path.Join(s.prefix, ref)
}
