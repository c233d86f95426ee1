package objstore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

const presignExpiry = 15 * time.Minute

// S3Config addresses a bucket on AWS or an S3 compatible server.
type S3Config struct {
	Region    string
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	// Prefix is prepended to every object key.
	Prefix string
}

// S3 is a Target and Locator backed by presigned S3 requests.
type S3 struct {
	cfg        S3Config
	httpClient *http.Client

	once    sync.Once
	presign *s3.PresignClient
	err     error
}

func NewS3(cfg S3Config, httpClient *http.Client) *S3 {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &S3{cfg: cfg, httpClient: httpClient}
}

func (s *S3) presignClient(ctx context.Context) (*s3.PresignClient, error) {
	s.once.Do(func() {
		opts := []func(*config.LoadOptions) error{config.WithRegion(s.cfg.Region)}
		if s.cfg.AccessKey != "" {
			opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				s.cfg.AccessKey, s.cfg.SecretKey, "",
			)))
		}
		cfg, err := loadDefaultAWSConfig(ctx, opts...)
		if err != nil {
			s.err = err
			return
		}

		client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
			if s.cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(s.cfg.Endpoint)
				o.UsePathStyle = true
			}
		})
		s.presign = newS3PresignClient(client)
	})
	return s.presign, s.err
}

func (s *S3) objectKey(key string) string {
	if s.cfg.Prefix == "" {
		return key
	}
	return strings.TrimRight(s.cfg.Prefix, "/") + "/" + key
}

// Put presigns a PUT for key and streams r to it.
func (s *S3) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	pc, err := s.presignClient(ctx)
	if err != nil {
		return err
	}

	req, err := presignPutObject(pc, ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.objectKey(key)),
	}, s3.WithPresignExpires(presignExpiry))
	if err != nil {
		return fmt.Errorf("presign put %s: %w", key, err)
	}

	return PutPresigned(ctx, s.httpClient, req.URL, r, size)
}

// DownloadURL presigns a GET for <deck id>/<name>.
func (s *S3) DownloadURL(ctx context.Context, deckID uuid.UUID, name string) (string, error) {
	pc, err := s.presignClient(ctx)
	if err != nil {
		return "", err
	}

	req, err := presignGetObject(pc, ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.objectKey(deckID.String() + "/" + name)),
	}, s3.WithPresignExpires(presignExpiry))
	if err != nil {
		return "", fmt.Errorf("presign get %s: %w", name, err)
	}
	return req.URL, nil
}

// UploadTarget scopes uploads to the deck's key space.
func (s *S3) UploadTarget(deckID uuid.UUID) Target {
	return deckTarget{s: s, deck: deckID.String()}
}

type deckTarget struct {
	s    *S3
	deck string
}

func (t deckTarget) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	return t.s.Put(ctx, t.deck+"/"+key, r, size)
}
