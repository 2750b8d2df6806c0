/*
Copyright (C) 2026 Waxpress

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package source materializes remote track audio as local temp files for the
// transcoder. HTTPS URLs come from the marketplace CDN; s3:// URLs point at
// masters in object storage.
package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/waxpress/waxradio/internal/config"
)

const tempPrefix = "waxradio-src-"

// Prepared is a downloaded source scoped to one stream segment.
type Prepared struct {
	Path string
}

// Cleanup removes the temp file. Safe to call twice.
func (p Prepared) Cleanup() {
	if p.Path != "" {
		_ = os.Remove(p.Path)
	}
}

// Fetcher downloads sources into the spool directory.
type Fetcher struct {
	spoolDir string
	client   *http.Client
	s3Client *s3.Client
	logger   zerolog.Logger
}

// NewFetcher creates a fetcher. The S3 client is only built when credentials
// are configured; s3:// URLs fail otherwise.
func NewFetcher(cfg *config.Config, logger zerolog.Logger) (*Fetcher, error) {
	f := &Fetcher{
		spoolDir: cfg.SpoolDir,
		client:   &http.Client{Timeout: 2 * time.Minute},
		logger:   logger.With().Str("component", "source").Logger(),
	}

	if cfg.S3AccessKeyID != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(cfg.S3Region),
			awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, ""),
			),
		)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		f.s3Client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if cfg.S3Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			}
			o.UsePathStyle = cfg.S3UsePathStyle
		})
	}

	return f, nil
}

// Fetch downloads rawURL into a scoped temp file.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Prepared, error) {
	if strings.HasPrefix(rawURL, "s3://") {
		return f.fetchS3(ctx, rawURL)
	}
	return f.fetchHTTP(ctx, rawURL)
}

func (f *Fetcher) fetchHTTP(ctx context.Context, rawURL string) (Prepared, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Prepared{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return Prepared{}, fmt.Errorf("download %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Prepared{}, fmt.Errorf("download %s: status %d", rawURL, resp.StatusCode)
	}

	return f.spool(resp.Body)
}

func (f *Fetcher) fetchS3(ctx context.Context, rawURL string) (Prepared, error) {
	if f.s3Client == nil {
		return Prepared{}, fmt.Errorf("s3 source %s but no S3 credentials configured", rawURL)
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return Prepared{}, fmt.Errorf("parse s3 url: %w", err)
	}
	bucket := parsed.Host
	key := strings.TrimPrefix(parsed.Path, "/")

	out, err := f.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return Prepared{}, fmt.Errorf("s3 get %s: %w", rawURL, err)
	}
	defer out.Body.Close()

	return f.spool(out.Body)
}

func (f *Fetcher) spool(body io.Reader) (Prepared, error) {
	tmp, err := os.CreateTemp(f.spoolDir, tempPrefix+"*.audio")
	if err != nil {
		return Prepared{}, fmt.Errorf("create temp file: %w", err)
	}

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return Prepared{}, fmt.Errorf("spool source: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return Prepared{}, err
	}

	return Prepared{Path: tmp.Name()}, nil
}

// SweepOrphans removes temp files left behind by crashed runs. Called once
// at startup so cleanup debt never accumulates unbounded across restarts.
func SweepOrphans(spoolDir string, logger zerolog.Logger) int {
	matches, err := filepath.Glob(filepath.Join(spoolDir, tempPrefix+"*"))
	if err != nil {
		return 0
	}
	removed := 0
	for _, path := range matches {
		if err := os.Remove(path); err == nil {
			removed++
		}
	}
	if removed > 0 {
		logger.Info().Int("count", removed).Msg("swept orphaned source files")
	}
	return removed
}
