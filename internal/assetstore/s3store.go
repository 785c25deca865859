package assetstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"rawlabel/internal/config"
	"rawlabel/internal/services"
)

const (
	metaSourceID    = "Rawlabel-Source"
	metaSize        = "Rawlabel-Fp-Size"
	metaMTime       = "Rawlabel-Fp-Mtime-Ns"
	metaChecksum    = "Rawlabel-Fp-Checksum"
	metaGeneratedAt = "Rawlabel-Generated-At"
)

// S3Store keeps one object per asset in a MinIO or S3 bucket.
type S3Store struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewS3Client builds a MinIO client for cfg without touching the network.
func NewS3Client(cfg config.S3) (*minio.Client, error) {
	endpoint, useSSL, err := parseEndpoint(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, err
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "assetstore", "open", "init minio", err)
	}
	return client, nil
}

// NewS3Store connects to the configured endpoint and creates the bucket when
// missing.
func NewS3Store(ctx context.Context, cfg config.S3) (*S3Store, error) {
	client, err := NewS3Client(cfg)
	if err != nil {
		return nil, err
	}
	store := &S3Store{client: client, bucket: cfg.Bucket, prefix: strings.Trim(cfg.Prefix, "/")}
	if err := store.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *S3Store) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return services.Wrap(services.ErrStorage, "assetstore", "open", "bucket exists "+s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return services.Wrap(services.ErrStorage, "assetstore", "open", "create bucket "+s.bucket, err)
	}
	return nil
}

func (s *S3Store) objectName(key Key) string {
	return objectName(s.prefix, key)
}

// Get downloads the object for key.
func (s *S3Store) Get(ctx context.Context, key Key) (Asset, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.objectName(key), minio.GetObjectOptions{})
	if err != nil {
		return Asset{}, s.classify("get", key, err)
	}
	defer obj.Close()
	info, err := obj.Stat()
	if err != nil {
		return Asset{}, s.classify("get", key, err)
	}
	data, err := io.ReadAll(obj)
	if err != nil {
		return Asset{}, s.classify("get", key, err)
	}
	fp, generated, err := decodeMetadata(func(name string) string { return objectMeta(info, name) })
	if err != nil {
		return Asset{}, services.Wrap(services.ErrStorage, "assetstore", "get", "decode metadata", err)
	}
	return Asset{Data: data, Fingerprint: fp, GeneratedAt: generated}, nil
}

// Put uploads the asset. A single PutObject replaces the object atomically.
func (s *S3Store) Put(ctx context.Context, key Key, asset Asset) error {
	_, err := s.client.PutObject(ctx, s.bucket, s.objectName(key),
		bytes.NewReader(asset.Data), int64(len(asset.Data)),
		minio.PutObjectOptions{
			ContentType:  "image/jpeg",
			UserMetadata: encodeMetadata(key, asset),
		})
	if err != nil {
		return services.Wrap(services.ErrStorage, "assetstore", "put", "put object", err)
	}
	return nil
}

// Exists reports whether an object is stored for key.
func (s *S3Store) Exists(ctx context.Context, key Key) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, s.objectName(key), minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if isNoSuchKey(err) {
		return false, nil
	}
	return false, services.Wrap(services.ErrStorage, "assetstore", "exists", "stat object", err)
}

// Stats lists the bucket prefix and reports entry counts per kind.
func (s *S3Store) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{Root: "s3://" + path.Join(s.bucket, s.prefix), ByKind: make(map[Kind]int)}
	listPrefix := ""
	if s.prefix != "" {
		listPrefix = s.prefix + "/"
	}
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: listPrefix, Recursive: true}) {
		if obj.Err != nil {
			return Stats{}, services.Wrap(services.ErrStorage, "assetstore", "stats", "list objects", obj.Err)
		}
		kind, _, _ := strings.Cut(strings.TrimPrefix(obj.Key, listPrefix), "/")
		stats.Entries++
		stats.TotalBytes += obj.Size
		stats.ByKind[Kind(kind)]++
	}
	return stats, nil
}

func (s *S3Store) classify(op string, key Key, err error) error {
	if isNoSuchKey(err) {
		return notFound(op, key)
	}
	return services.Wrap(services.ErrStorage, "assetstore", op, "object "+key.String(), err)
}

func isNoSuchKey(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}

func objectName(prefix string, key Key) string {
	if prefix == "" {
		return key.StorageName()
	}
	return prefix + "/" + key.StorageName()
}

func parseEndpoint(endpoint string, useSSL bool) (string, bool, error) {
	endpoint = strings.TrimSpace(endpoint)
	if strings.HasPrefix(endpoint, "http") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return "", false, fmt.Errorf("parse s3 endpoint: %w", err)
		}
		return u.Host, u.Scheme == "https", nil
	}
	return endpoint, useSSL, nil
}

func encodeMetadata(key Key, asset Asset) map[string]string {
	meta := map[string]string{
		metaSourceID:    url.QueryEscape(key.SourceID),
		metaSize:        strconv.FormatInt(asset.Fingerprint.Size, 10),
		metaMTime:       strconv.FormatInt(asset.Fingerprint.ModTimeUnixNano, 10),
		metaGeneratedAt: asset.GeneratedAt.UTC().Format(time.RFC3339Nano),
	}
	if asset.Fingerprint.Checksum != "" {
		meta[metaChecksum] = asset.Fingerprint.Checksum
	}
	return meta
}

func decodeMetadata(get func(name string) string) (Fingerprint, time.Time, error) {
	var fp Fingerprint
	size, err := strconv.ParseInt(get(metaSize), 10, 64)
	if err != nil {
		return Fingerprint{}, time.Time{}, fmt.Errorf("fingerprint size: %w", err)
	}
	mtime, err := strconv.ParseInt(get(metaMTime), 10, 64)
	if err != nil {
		return Fingerprint{}, time.Time{}, fmt.Errorf("fingerprint mtime: %w", err)
	}
	fp.Size = size
	fp.ModTimeUnixNano = mtime
	fp.Checksum = get(metaChecksum)
	var generated time.Time
	if raw := get(metaGeneratedAt); raw != "" {
		if generated, err = time.Parse(time.RFC3339Nano, raw); err != nil {
			return Fingerprint{}, time.Time{}, fmt.Errorf("generated_at: %w", err)
		}
	}
	return fp, generated, nil
}

// objectMeta reads user metadata regardless of how the server cased or
// prefixed the key.
func objectMeta(info minio.ObjectInfo, name string) string {
	for k, v := range info.UserMetadata {
		if strings.EqualFold(k, name) || strings.EqualFold(k, "X-Amz-Meta-"+name) {
			return v
		}
	}
	return info.Metadata.Get("X-Amz-Meta-" + name)
}
