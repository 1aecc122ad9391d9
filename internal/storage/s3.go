// Package storage fetches the CRM lead export and the platform account
// export from S3.
package storage

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/lwai/onboarding/internal/lead"
)

// ObjectGetter is the S3 surface the source needs; satisfied by *s3.Client.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Source reads the lead and account CSV exports from one bucket.
type Source struct {
	client      ObjectGetter
	bucket      string
	leadsKey    string
	accountsKey string
}

// Config locates the two export objects.
type Config struct {
	Bucket      string
	LeadsKey    string
	AccountsKey string
	Region      string
	AWSProfile  string
}

// NewSource builds an S3-backed source using the default credential chain,
// optionally pinned to a shared-config profile.
func NewSource(ctx context.Context, cfg Config) (*Source, error) {
	var awsCfg aws.Config
	var err error

	if cfg.AWSProfile != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.Region),
			awsconfig.WithSharedConfigProfile(cfg.AWSProfile),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.Region),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return &Source{
		client:      s3.NewFromConfig(awsCfg),
		bucket:      cfg.Bucket,
		leadsKey:    cfg.LeadsKey,
		accountsKey: cfg.AccountsKey,
	}, nil
}

// NewSourceWithClient builds a source over an existing client (useful for
// testing).
func NewSourceWithClient(client ObjectGetter, cfg Config) *Source {
	return &Source{
		client:      client,
		bucket:      cfg.Bucket,
		leadsKey:    cfg.LeadsKey,
		accountsKey: cfg.AccountsKey,
	}
}

// FetchLeads downloads and decodes the CRM contact export.
func (s *Source) FetchLeads(ctx context.Context) ([]lead.Lead, error) {
	body, err := s.fetch(ctx, s.leadsKey)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	leads, err := lead.DecodeLeads(body)
	if err != nil {
		return nil, fmt.Errorf("decode leads %s: %w", s.leadsKey, err)
	}
	log.Printf("[storage] fetched %d leads from s3://%s/%s", len(leads), s.bucket, s.leadsKey)
	return leads, nil
}

// FetchAccounts downloads the platform account export and returns the set
// of emails that already have accounts.
func (s *Source) FetchAccounts(ctx context.Context) (lead.AccountSet, error) {
	body, err := s.fetch(ctx, s.accountsKey)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	accounts, err := lead.DecodeAccounts(body)
	if err != nil {
		return nil, fmt.Errorf("decode accounts %s: %w", s.accountsKey, err)
	}
	log.Printf("[storage] fetched %d accounts from s3://%s/%s", len(accounts), s.bucket, s.accountsKey)
	return accounts, nil
}

func (s *Source) fetch(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", s.bucket, key, err)
	}
	return out.Body, nil
}
