package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"promptfinder/internal/config"
	"promptfinder/internal/metrics"
	"promptfinder/internal/models"
)

var (
	ErrNotFound      = errors.New("file not found in storage")
	ErrTooLarge      = errors.New("object exceeds read limit")
	ErrCopyNotLanded = errors.New("copied object not found at destination")
)

// PresignError is a client mistake in a presign request; the message is safe to show.
type PresignError struct {
	Message string
}

func (e *PresignError) Error() string {
	return e.Message
}

// UpstreamError carries the status code of a failed object-store call.
type UpstreamError struct {
	Op         string
	StatusCode int
	Code       string
	Err        error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: status %d (%s): %v", e.Op, e.StatusCode, e.Code, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

type Presigned struct {
	URL       string
	Key       string
	CDNURL    string
	ExpiresIn int
	IsVideo   bool
	Kind      models.MediaKind
}

type HeadResult struct {
	Exists      bool
	Size        int64
	ContentType string
}

type RenameResult struct {
	Success  bool
	OldKey   string
	NewKey   string
	Leftover bool
	Err      error
}

// objectAPI is the subset of *minio.Client the store calls.
type objectAPI interface {
	PresignedPutObject(ctx context.Context, bucket, object string, expires time.Duration) (*url.URL, error)
	StatObject(ctx context.Context, bucket, object string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	CopyObject(ctx context.Context, dst minio.CopyDestOptions, src minio.CopySrcOptions) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucket, object string, opts minio.RemoveObjectOptions) error
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	FGetObject(ctx context.Context, bucket, object, filePath string, opts minio.GetObjectOptions) error
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
}

type ObjectStore struct {
	api   objectAPI
	fetch func(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	cfg   config.StorageConfig
	now   func() time.Time
}

// NewObjectStore builds the process-wide client. Callers share the returned instance.
func NewObjectStore(cfg config.StorageConfig) (*ObjectStore, error) {
	endpoint := cfg.Endpoint
	useSSL := cfg.UseSSL

	if strings.HasPrefix(endpoint, "http") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("parse endpoint: %w", err)
		}
		endpoint = u.Host
		useSSL = u.Scheme == "https"
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.ReadTimeout,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    useSSL,
		Region:    cfg.Region,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}

	return newObjectStore(client, func(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
		return client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	}, cfg), nil
}

// SetMaxAttempts sets minio-go's retry budget. It is a package-level setting shared by every
// client in the process, so binaries call it once at startup before building a store.
func SetMaxAttempts(n int) {
	if n > 0 {
		minio.MaxRetry = n
	}
}

func newObjectStore(api objectAPI, fetch func(ctx context.Context, bucket, key string) (io.ReadCloser, error), cfg config.StorageConfig) *ObjectStore {
	return &ObjectStore{
		api:   api,
		fetch: fetch,
		cfg:   cfg,
		now:   time.Now,
	}
}

func (s *ObjectStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.api.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("bucket exists %s: %w", s.cfg.Bucket, err)
	}
	if !exists {
		if err := s.api.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{Region: s.cfg.Region}); err != nil {
			return fmt.Errorf("create bucket %s: %w", s.cfg.Bucket, err)
		}
	}
	return nil
}

func (s *ObjectStore) PresignPut(ctx context.Context, contentType string, contentLength int64, suggestedName string) (Presigned, error) {
	kind, err := ValidatePresign(contentType, contentLength)
	if err != nil {
		return Presigned{}, err
	}

	key := UploadKey(kind, extensionFor(kind, contentType, suggestedName), s.now())

	expiry := s.cfg.PresignExpiry
	if expiry <= 0 || expiry > time.Hour {
		expiry = time.Hour
	}

	u, err := s.api.PresignedPutObject(ctx, s.cfg.Bucket, key, expiry)
	metrics.StorageResult("presign", err)
	if err != nil {
		return Presigned{}, wrapUpstream("presign", err)
	}

	return Presigned{
		URL:       u.String(),
		Key:       key,
		CDNURL:    s.PublicURL(key),
		ExpiresIn: int(expiry / time.Second),
		IsVideo:   kind == models.MediaVideo,
		Kind:      kind,
	}, nil
}

// Head reports whether key exists. A missing key yields Exists=false and ErrNotFound.
func (s *ObjectStore) Head(ctx context.Context, key string) (HeadResult, error) {
	info, err := s.api.StatObject(ctx, s.cfg.Bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return HeadResult{Exists: false}, ErrNotFound
		}
		return HeadResult{}, wrapUpstream("head", err)
	}
	return HeadResult{
		Exists:      true,
		Size:        info.Size,
		ContentType: info.ContentType,
	}, nil
}

// CopyVerified copies src to dst and confirms dst is readable. src is left untouched.
func (s *ObjectStore) CopyVerified(ctx context.Context, src, dst string) (err error) {
	defer func() { metrics.StorageResult("copy", err) }()

	_, err = s.api.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: s.cfg.Bucket, Object: dst},
		minio.CopySrcOptions{Bucket: s.cfg.Bucket, Object: src},
	)
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("copy %s: %w", src, ErrNotFound)
		}
		return wrapUpstream("copy", err)
	}

	head, err := s.Head(ctx, dst)
	if err != nil || !head.Exists {
		if errors.Is(err, ErrNotFound) || err == nil {
			return fmt.Errorf("verify %s: %w", dst, ErrCopyNotLanded)
		}
		return fmt.Errorf("verify %s: %w", dst, err)
	}
	return nil
}

// Rename relocates one object with copy, verify, delete. The source survives any failure
// before the copy is verified; a failed delete afterwards is reported as a leftover.
func (s *ObjectStore) Rename(ctx context.Context, oldKey, newKey string) RenameResult {
	result := RenameResult{OldKey: oldKey, NewKey: newKey}
	if oldKey == newKey {
		result.Success = true
		return result
	}

	if err := s.CopyVerified(ctx, oldKey, newKey); err != nil {
		result.Err = err
		return result
	}

	result.Success = true
	if err := s.Delete(ctx, oldKey); err != nil && !errors.Is(err, ErrNotFound) {
		result.Leftover = true
		result.Err = fmt.Errorf("delete old key: %w", err)
	}
	return result
}

func (s *ObjectStore) Delete(ctx context.Context, key string) (err error) {
	defer func() { metrics.StorageResult("delete", err) }()

	if err := s.api.RemoveObject(ctx, s.cfg.Bucket, key, minio.RemoveObjectOptions{}); err != nil {
		if isNotFound(err) {
			return ErrNotFound
		}
		return wrapUpstream("delete", err)
	}
	return nil
}

func (s *ObjectStore) Put(ctx context.Context, key string, data []byte, contentType string) (err error) {
	defer func() { metrics.StorageResult("put", err) }()

	_, err = s.api.PutObject(ctx, s.cfg.Bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: "public, max-age=31536000, immutable",
	})
	if err != nil {
		return wrapUpstream("put", err)
	}
	return nil
}

// Get reads a whole object into memory, refusing anything larger than limit bytes.
func (s *ObjectStore) Get(ctx context.Context, key string, limit int64) ([]byte, error) {
	rc, err := s.fetch(ctx, s.cfg.Bucket, key)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, wrapUpstream("get", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, wrapUpstream("get", err)
	}
	if int64(len(data)) > limit {
		return nil, ErrTooLarge
	}
	return data, nil
}

func (s *ObjectStore) Download(ctx context.Context, key, filePath string) error {
	if err := s.api.FGetObject(ctx, s.cfg.Bucket, key, filePath, minio.GetObjectOptions{}); err != nil {
		if isNotFound(err) {
			return ErrNotFound
		}
		return wrapUpstream("download", err)
	}
	return nil
}

// PublicURL prefers the CDN domain and falls back to path-style bucket URLs.
func (s *ObjectStore) PublicURL(key string) string {
	if s.cfg.CustomDomain != "" {
		return fmt.Sprintf("https://%s/%s", strings.TrimSuffix(s.cfg.CustomDomain, "/"), key)
	}
	base := strings.TrimSuffix(s.cfg.Endpoint, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}
	return fmt.Sprintf("%s/%s/%s", base, s.cfg.Bucket, key)
}

// KeyFromURL recovers the object key from a URL produced by PublicURL or the raw endpoint.
func (s *ObjectStore) KeyFromURL(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", false
	}
	p := strings.TrimPrefix(u.Path, "/")
	if s.cfg.CustomDomain != "" && strings.EqualFold(u.Host, s.cfg.CustomDomain) {
		return p, p != ""
	}
	if rest, ok := strings.CutPrefix(p, s.cfg.Bucket+"/"); ok && rest != "" {
		return rest, true
	}
	if strings.HasPrefix(p, "file/"+s.cfg.Bucket+"/") {
		// B2 native download URLs: /file/{bucket}/{key}
		rest := strings.TrimPrefix(p, "file/"+s.cfg.Bucket+"/")
		return rest, rest != ""
	}
	return "", false
}

// AllowedHost reports whether raw points at storage this service owns.
func (s *ObjectStore) AllowedHost(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	candidates := append([]string{s.cfg.CustomDomain, endpointHost(s.cfg.Endpoint)}, s.cfg.AllowedHosts...)
	for _, c := range candidates {
		if c != "" && strings.EqualFold(strings.TrimSpace(c), host) {
			return true
		}
	}
	return false
}

func endpointHost(endpoint string) string {
	if !strings.Contains(endpoint, "://") {
		endpoint = "https://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.StatusCode == http.StatusNotFound || resp.Code == "NoSuchKey"
}

func wrapUpstream(op string, err error) error {
	resp := minio.ToErrorResponse(err)
	return &UpstreamError{Op: op, StatusCode: resp.StatusCode, Code: resp.Code, Err: err}
}
