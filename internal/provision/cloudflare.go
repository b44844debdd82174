package provision

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cloudflare/cloudflare-go"

	"github.com/marden/bookpool/pkg/config"
)

// Cloudflare provisions organization subdomains as proxied CNAME records.
type Cloudflare struct {
	api    *cloudflare.API
	cfg    *config.DNSConfig
	logger *slog.Logger
}

func NewCloudflare(cfg *config.DNSConfig, logger *slog.Logger) (*Cloudflare, error) {
	if cfg.CloudflareToken == "" || cfg.CloudflareZoneID == "" {
		return nil, fmt.Errorf("cloudflare provisioner requires token and zone id")
	}

	api, err := cloudflare.NewWithAPIToken(cfg.CloudflareToken)
	if err != nil {
		return nil, fmt.Errorf("creating cloudflare client: %w", err)
	}

	return &Cloudflare{api: api, cfg: cfg, logger: logger}, nil
}

func (c *Cloudflare) SetupDomain(ctx context.Context, input SetupDomainInput) error {
	if input.IsPlatform {
		c.logger.Debug("skipping domain for platform organization", "slug", input.Slug)
		return nil
	}

	fqdn := fmt.Sprintf("%s.%s", input.Slug, c.cfg.BaseDomain)
	rc := cloudflare.ZoneIdentifier(c.cfg.CloudflareZoneID)

	// Already-provisioned domains are fine: the finalizer retries.
	existing, _, err := c.api.ListDNSRecords(ctx, rc, cloudflare.ListDNSRecordsParams{
		Type: "CNAME",
		Name: fqdn,
	})
	if err != nil {
		return fmt.Errorf("listing dns records for %s: %w", fqdn, err)
	}
	if len(existing) > 0 {
		c.logger.Info("domain already provisioned", "fqdn", fqdn)
		return nil
	}

	proxied := true
	_, err = c.api.CreateDNSRecord(ctx, rc, cloudflare.CreateDNSRecordParams{
		Type:    "CNAME",
		Name:    fqdn,
		Content: c.cfg.TargetCNAME,
		TTL:     1, // automatic
		Proxied: &proxied,
	})
	if err != nil {
		return fmt.Errorf("creating dns record for %s: %w", fqdn, err)
	}

	c.logger.Info("provisioned organization domain",
		"fqdn", fqdn,
		"target", c.cfg.TargetCNAME,
		"owner", input.OrgOwnerEmail,
	)
	return nil
}
