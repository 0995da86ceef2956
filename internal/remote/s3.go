package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Client implements Client over a versioning-enabled S3 bucket.
type S3Client struct {
	s3Client *s3.Client
	config   *S3Config
}

func NewS3Client(s3Client *s3.Client, cfg *S3Config) *S3Client {
	return &S3Client{
		s3Client: s3Client,
		config:   cfg,
	}
}

func NewS3ClientWithConfig(cfg *S3Config) (*S3Client, error) {
	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConns:          200,
			MaxIdleConnsPerHost:   100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ForceAttemptHTTP2:     true,
		},
		Timeout: 30 * time.Second,
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
		config.WithRegion(cfg.Region),
		config.WithHTTPClient(httpClient),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	awsClient := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
		if cfg.UseAccelerate {
			o.UseAccelerate = true
		}
	})

	return NewS3Client(awsClient, cfg), nil
}

func (s *S3Client) ListVersions(ctx context.Context, key string) ([]Version, error) {
	var versions, markers []Version

	input := &s3.ListObjectVersionsInput{
		Bucket: &s.config.BucketName,
		Prefix: &key,
	}

	for {
		resp, err := s.s3Client.ListObjectVersions(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("list versions %q: %w", key, err)
		}

		for _, v := range resp.Versions {
			if aws.ToString(v.Key) != key {
				continue
			}
			versions = append(versions, Version{
				VersionID:    aws.ToString(v.VersionId),
				ETag:         cleanETag(aws.ToString(v.ETag)),
				Size:         aws.ToInt64(v.Size),
				LastModified: aws.ToTime(v.LastModified),
				IsLatest:     aws.ToBool(v.IsLatest),
			})
		}
		for _, m := range resp.DeleteMarkers {
			if aws.ToString(m.Key) != key {
				continue
			}
			markers = append(markers, Version{
				VersionID:      aws.ToString(m.VersionId),
				LastModified:   aws.ToTime(m.LastModified),
				IsLatest:       aws.ToBool(m.IsLatest),
				IsDeleteMarker: true,
			})
		}

		if !aws.ToBool(resp.IsTruncated) {
			break
		}
		input.KeyMarker = resp.NextKeyMarker
		input.VersionIdMarker = resp.NextVersionIdMarker
	}

	return mergeVersionLists(versions, markers), nil
}

// mergeVersionLists interleaves object versions and delete markers into
// one newest-first sequence. Each input arrives newest-first from the
// store and that internal order is authoritative, so entries are merged
// two-pointer style rather than re-sorted: the "latest" flag wins,
// then the later timestamp, and on a cross-list timestamp tie the
// delete marker ranks newer since a delete recorded in the same second
// as a put follows it.
func mergeVersionLists(versions, markers []Version) []Version {
	out := make([]Version, 0, len(versions)+len(markers))
	i, j := 0, 0
	for i < len(versions) && j < len(markers) {
		v, m := versions[i], markers[j]
		switch {
		case v.IsLatest != m.IsLatest:
			if v.IsLatest {
				out = append(out, v)
				i++
			} else {
				out = append(out, m)
				j++
			}
		case v.LastModified.After(m.LastModified):
			out = append(out, v)
			i++
		default:
			out = append(out, m)
			j++
		}
	}
	out = append(out, versions[i:]...)
	out = append(out, markers[j:]...)
	return out
}

func (s *S3Client) HeadVersion(ctx context.Context, key, versionID string) (*Version, error) {
	resp, err := s.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket:    &s.config.BucketName,
		Key:       &key,
		VersionId: &versionID,
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrVersionNotFound
		}
		return nil, fmt.Errorf("head version %q@%q: %w", key, versionID, err)
	}

	return &Version{
		VersionID:     aws.ToString(resp.VersionId),
		ETag:          cleanETag(aws.ToString(resp.ETag)),
		ContentSHA256: resp.Metadata[MetaSha256],
		Size:          aws.ToInt64(resp.ContentLength),
		LastModified:  aws.ToTime(resp.LastModified),
	}, nil
}

func (s *S3Client) GetVersion(ctx context.Context, key, versionID string) (io.ReadCloser, *Version, error) {
	resp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket:    &s.config.BucketName,
		Key:       &key,
		VersionId: &versionID,
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil, ErrVersionNotFound
		}
		return nil, nil, fmt.Errorf("get version %q@%q: %w", key, versionID, err)
	}

	served := &Version{
		VersionID:     aws.ToString(resp.VersionId),
		ETag:          cleanETag(aws.ToString(resp.ETag)),
		ContentSHA256: resp.Metadata[MetaSha256],
		Size:          aws.ToInt64(resp.ContentLength),
		LastModified:  aws.ToTime(resp.LastModified),
	}
	return resp.Body, served, nil
}

func (s *S3Client) PutVersion(ctx context.Context, key string, body io.Reader, size int64, meta PutMetadata) (string, error) {
	resp, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &s.config.BucketName,
		Key:           &key,
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String("application/octet-stream"),
		Metadata: map[string]string{
			MetaSha256:    meta.SHA256,
			MetaCreatedAt: meta.CreatedAt.UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return "", fmt.Errorf("put version %q: %w", key, err)
	}

	versionID := aws.ToString(resp.VersionId)
	if versionID == "" {
		return "", fmt.Errorf("put version %q: store returned no version id (bucket versioning disabled?)", key)
	}
	return versionID, nil
}

func cleanETag(etag string) string {
	return strings.ReplaceAll(etag, "\"", "")
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	var nk *types.NoSuchKey
	return errors.As(err, &nf) || errors.As(err, &nk)
}
