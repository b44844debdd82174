package provision

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	r53types "github.com/aws/aws-sdk-go-v2/service/route53/types"

	"github.com/marden/bookpool/pkg/config"
)

// Route53 provisions organization subdomains via UPSERT record changes,
// which are idempotent by construction.
type Route53 struct {
	client *route53.Client
	cfg    *config.DNSConfig
	logger *slog.Logger
}

func NewRoute53(cfg *config.DNSConfig, logger *slog.Logger) (*Route53, error) {
	if cfg.Route53ZoneID == "" {
		return nil, fmt.Errorf("route53 provisioner requires a hosted zone id")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Route53Region),
	}
	if cfg.Route53AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.Route53AccessKey, cfg.Route53SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	return &Route53{
		client: route53.NewFromConfig(awsCfg),
		cfg:    cfg,
		logger: logger,
	}, nil
}

func (r *Route53) SetupDomain(ctx context.Context, input SetupDomainInput) error {
	if input.IsPlatform {
		r.logger.Debug("skipping domain for platform organization", "slug", input.Slug)
		return nil
	}

	fqdn := fmt.Sprintf("%s.%s", input.Slug, r.cfg.BaseDomain)

	_, err := r.client.ChangeResourceRecordSets(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(r.cfg.Route53ZoneID),
		ChangeBatch: &r53types.ChangeBatch{
			Comment: aws.String("bookpool organization subdomain"),
			Changes: []r53types.Change{
				{
					Action: r53types.ChangeActionUpsert,
					ResourceRecordSet: &r53types.ResourceRecordSet{
						Name: aws.String(fqdn),
						Type: r53types.RRTypeCname,
						TTL:  aws.Int64(300),
						ResourceRecords: []r53types.ResourceRecord{
							{Value: aws.String(r.cfg.TargetCNAME)},
						},
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("upserting dns record for %s: %w", fqdn, err)
	}

	r.logger.Info("provisioned organization domain",
		"fqdn", fqdn,
		"target", r.cfg.TargetCNAME,
		"owner", input.OrgOwnerEmail,
	)
	return nil
}
