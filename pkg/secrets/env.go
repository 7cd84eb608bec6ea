package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// EnvProvider reads secrets from environment variables.
type EnvProvider struct {
	prefix string
	getenv func(string) (string, bool)
}

// NewEnvProvider creates a provider that reads prefix + NAME, where NAME is
// the secret name upper-cased with hyphens and dots replaced by underscores.
func NewEnvProvider(prefix string) *EnvProvider {
	return &EnvProvider{prefix: prefix, getenv: os.LookupEnv}
}

// Lookup implements Provider. An empty variable counts as unset.
func (p *EnvProvider) Lookup(ctx context.Context, name string) (string, error) {
	key := p.envVar(name)
	if v, ok := p.getenv(key); ok && v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%w: %s not set", ErrNotFound, key)
}

// Name implements Provider.
func (p *EnvProvider) Name() string { return "env" }

func (p *EnvProvider) envVar(name string) string {
	r := strings.NewReplacer("-", "_", ".", "_")
	return p.prefix + strings.ToUpper(r.Replace(name))
}
