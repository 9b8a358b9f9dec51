// Package storage keeps letter attachments in an S3-compatible bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	// Prefix holds every letter attachment.
	Prefix = "cartas/"
	// ThumbSuffix marks a generated thumbnail next to its main object.
	ThumbSuffix = "_thumb.jpg"

	presignExpiry = 15 * time.Minute
)

var (
	ErrMIMENotAllowed = errors.New("file type not allowed: send a PDF or an image (JPEG, PNG or WEBP)")
	ErrNotFound       = errors.New("object not found")
)

// AllowedMIMETypes maps accepted content types to their canonical extension.
var AllowedMIMETypes = map[string]string{
	"application/pdf": ".pdf",
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
}

// Object is one listed object.
type Object struct {
	Name         string    `json:"object_name"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// Config addresses the bucket.
type Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
}

// Client wraps a minio client bound to one bucket.
type Client struct {
	mc       *minio.Client
	bucket   string
	endpoint string
}

// New connects to the endpoint. A scheme prefix selects TLS.
func New(cfg Config) (*Client, error) {
	host, secure := splitEndpoint(cfg.Endpoint)
	if host == "" {
		return nil, fmt.Errorf("storage endpoint is required")
	}

	mc, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &Client{mc: mc, bucket: cfg.Bucket, endpoint: cfg.Endpoint}, nil
}

func splitEndpoint(endpoint string) (string, bool) {
	e := strings.TrimSpace(endpoint)
	switch {
	case strings.HasPrefix(e, "https://"):
		return strings.TrimSuffix(strings.TrimPrefix(e, "https://"), "/"), true
	case strings.HasPrefix(e, "http://"):
		return strings.TrimSuffix(strings.TrimPrefix(e, "http://"), "/"), false
	}
	return strings.TrimSuffix(e, "/"), false
}

func (c *Client) Bucket() string   { return c.bucket }
func (c *Client) Endpoint() string { return c.endpoint }

// EnsureBucket creates the bucket when missing.
func (c *Client) EnsureBucket(ctx context.Context) error {
	ok, err := c.mc.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", c.bucket, err)
	}
	if ok {
		return nil
	}
	if err := c.mc.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", c.bucket, err)
	}
	return nil
}

// Ready reports whether the bucket is reachable.
func (c *Client) Ready(ctx context.Context) error {
	ok, err := c.mc.BucketExists(ctx, c.bucket)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("bucket %s does not exist", c.bucket)
	}
	return nil
}

// Upload stores an attachment for letter n and returns its object name.
func (c *Client) Upload(ctx context.Context, n int, filename, contentType string, r io.Reader, size int64) (string, error) {
	ext, err := ValidateMIME(contentType, filename)
	if err != nil {
		return "", err
	}
	name := ObjectName(n, ext)
	if err := c.Put(ctx, name, contentType, r, size); err != nil {
		return "", err
	}
	return name, nil
}

// Put writes an object. A negative size streams in parts.
func (c *Client) Put(ctx context.Context, name, contentType string, r io.Reader, size int64) error {
	opts := minio.PutObjectOptions{ContentType: contentType}
	if size < 0 {
		opts.PartSize = 10 << 20
	}
	if _, err := c.mc.PutObject(ctx, c.bucket, name, r, size, opts); err != nil {
		return fmt.Errorf("failed to upload %s: %w", name, err)
	}
	return nil
}

// Get opens an object for reading.
func (c *Client) Get(ctx context.Context, name string) (io.ReadCloser, string, error) {
	info, err := c.mc.StatObject(ctx, c.bucket, name, minio.StatObjectOptions{})
	if err != nil {
		return nil, "", c.translate(name, err)
	}
	obj, err := c.mc.GetObject(ctx, c.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, "", c.translate(name, err)
	}
	return obj, info.ContentType, nil
}

// Exists reports whether name is stored.
func (c *Client) Exists(ctx context.Context, name string) (bool, error) {
	_, err := c.mc.StatObject(ctx, c.bucket, name, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if errors.Is(c.translate(name, err), ErrNotFound) {
		return false, nil
	}
	return false, err
}

// Delete removes an object.
func (c *Client) Delete(ctx context.Context, name string) error {
	if err := c.mc.RemoveObject(ctx, c.bucket, name, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete %s: %w", name, c.translate(name, err))
	}
	return nil
}

// List returns every object under prefix.
func (c *Client) List(ctx context.Context, prefix string) ([]Object, error) {
	var out []Object
	for info := range c.mc.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if info.Err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", prefix, info.Err)
		}
		out = append(out, Object{Name: info.Key, Size: info.Size, LastModified: info.LastModified})
	}
	return out, nil
}

// PresignedURL signs a temporary GET link.
func (c *Client) PresignedURL(ctx context.Context, name string) (string, error) {
	u, err := c.mc.PresignedGetObject(ctx, c.bucket, name, presignExpiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("failed to sign %s: %w", name, err)
	}
	return u.String(), nil
}

// LatestURL signs the most recent main attachment of letter n.
func (c *Client) LatestURL(ctx context.Context, n int) (string, error) {
	objs, err := c.List(ctx, LetterPrefix(n))
	if err != nil {
		return "", err
	}
	latest, ok := Latest(objs)
	if !ok {
		return "", fmt.Errorf("%w: no attachment for carta %d", ErrNotFound, n)
	}
	return c.PresignedURL(ctx, latest.Name)
}

func (c *Client) translate(name string, err error) error {
	if code := minio.ToErrorResponse(err).Code; code == "NoSuchKey" || code == "NoSuchObject" {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return err
}

// ValidateMIME checks the content type against the allow-list and returns
// the extension to store the object with. The filename extension wins when
// it matches the type.
func ValidateMIME(contentType, filename string) (string, error) {
	ct := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	ext, ok := AllowedMIMETypes[ct]
	if !ok {
		return "", ErrMIMENotAllowed
	}
	if fe := strings.ToLower(path.Ext(filename)); fe != "" {
		if ct == "image/jpeg" && fe == ".jpeg" {
			return fe, nil
		}
		if fe == ext {
			return fe, nil
		}
	}
	return ext, nil
}

// LetterPrefix is the folder of letter n.
func LetterPrefix(n int) string {
	return Prefix + strconv.Itoa(n) + "/"
}

// ObjectName builds a fresh attachment name for letter n.
func ObjectName(n int, ext string) string {
	return LetterPrefix(n) + "anexo-" + strings.ReplaceAll(uuid.NewString(), "-", "") + ext
}

// ThumbName is the thumbnail object of a main object.
func ThumbName(name string) string {
	if IsThumb(name) {
		return name
	}
	return strings.TrimSuffix(name, path.Ext(name)) + ThumbSuffix
}

// IsThumb reports whether name is a generated thumbnail.
func IsThumb(name string) bool {
	return strings.HasSuffix(name, ThumbSuffix)
}

// LetterNumberOf parses n out of "cartas/{n}/...".
func LetterNumberOf(name string) (int, bool) {
	rest, ok := strings.CutPrefix(name, Prefix)
	if !ok {
		return 0, false
	}
	head, _, ok := strings.Cut(rest, "/")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(head)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// Latest picks the newest non-thumbnail object.
func Latest(objs []Object) (Object, bool) {
	mains := make([]Object, 0, len(objs))
	for _, o := range objs {
		if !IsThumb(o.Name) {
			mains = append(mains, o)
		}
	}
	if len(mains) == 0 {
		return Object{}, false
	}
	sort.SliceStable(mains, func(i, j int) bool { return mains[i].LastModified.After(mains[j].LastModified) })
	return mains[0], true
}
