package provision

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/marden/bookpool/pkg/config"
)

// SetupDomainInput describes the subdomain an organization needs.
type SetupDomainInput struct {
	Slug          string
	IsPlatform    bool
	OrgOwnerEmail string
}

// Provisioner creates the DNS entry for an organization's subdomain.
// SetupDomain must tolerate the domain already existing: the onboarding
// finalizer is retried on webhook redelivery.
type Provisioner interface {
	SetupDomain(ctx context.Context, input SetupDomainInput) error
}

// New selects a provisioner from configuration. Platform-internal
// organizations never get a public subdomain, so every provisioner
// skips them.
func New(cfg *config.DNSConfig, logger *slog.Logger) (Provisioner, error) {
	switch cfg.Provider {
	case "cloudflare":
		return NewCloudflare(cfg, logger)
	case "route53":
		return NewRoute53(cfg, logger)
	case "none", "":
		return &Noop{logger: logger}, nil
	default:
		return nil, fmt.Errorf("unknown dns provider %q", cfg.Provider)
	}
}

// Noop logs instead of provisioning. Used in development and tests.
type Noop struct {
	logger *slog.Logger
}

func (n *Noop) SetupDomain(ctx context.Context, input SetupDomainInput) error {
	n.logger.Info("skipping domain provisioning (no dns provider configured)",
		"slug", input.Slug,
		"platform", input.IsPlatform,
	)
	return nil
}
