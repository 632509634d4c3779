package mediastore

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const manifestKey = "manifest.json"

// SpacesStore serves item art and the catalog manifest from a
// DigitalOcean Spaces bucket.
type SpacesStore struct {
	client   *s3.Client
	bucket   string
	region   string
	ItemRoot string
}

func NewSpacesStore(key, secret, region, bucket, itemRoot string) (*SpacesStore, error) {
	resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{
			URL: fmt.Sprintf("https://%s.digitaloceanspaces.com", region),
		}, nil
	})

	cfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithEndpointResolverWithOptions(resolver),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(key, secret, "")),
		config.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load Spaces config: %w", err)
	}

	return &SpacesStore{
		client:   s3.NewFromConfig(cfg),
		bucket:   bucket,
		region:   region,
		ItemRoot: strings.TrimPrefix(itemRoot, "/"),
	}, nil
}

// FetchManifest downloads the raw catalog manifest.
func (s *SpacesStore) FetchManifest(ctx context.Context) ([]byte, error) {
	key := manifestKey
	if s.ItemRoot != "" {
		key = s.ItemRoot + "/" + manifestKey
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch manifest: %w", err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return body, nil
}

// ImageURL is the public address of an item's art.
func (s *SpacesStore) ImageURL(nftID string) string {
	if s.ItemRoot != "" {
		return fmt.Sprintf("https://%s.%s.digitaloceanspaces.com/%s/%s.png", s.bucket, s.region, s.ItemRoot, nftID)
	}
	return fmt.Sprintf("https://%s.%s.digitaloceanspaces.com/%s.png", s.bucket, s.region, nftID)
}

func (s *SpacesStore) GetBucket() string {
	return s.bucket
}

func (s *SpacesStore) GetRegion() string {
	return s.region
}
