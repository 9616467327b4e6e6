package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"PDFAnnouncer/internal/domain"
	"PDFAnnouncer/internal/ledger"
	"PDFAnnouncer/internal/ports"
)

// API is the subset of the S3 client the bucket needs.
type API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CopyObject(ctx context.Context, in *s3.CopyObjectInput, opts ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Options locate documents and the ledger inside the bucket.
type Options struct {
	Bucket        string
	Prefix        string
	StateKey      string
	PublicBaseURL string
	MaxObjectSize int64
}

// Bucket lists PDFs and stores the announcement ledger in one S3 bucket.
type Bucket struct {
	api    API
	opts   Options
	logger *slog.Logger
}

var (
	_ ports.DocumentSource = (*Bucket)(nil)
	_ ports.StateStore     = (*Bucket)(nil)
)

// NewS3API loads the default AWS credential chain. A non-empty endpoint switches to
// path-style addressing for S3-compatible stores.
func NewS3API(ctx context.Context, region, endpoint string) (*s3.Client, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// NewBucket wires an S3 API with bucket layout options.
func NewBucket(api API, opts Options, log *slog.Logger) *Bucket {
	if opts.StateKey == "" {
		opts.StateKey = "cache.json"
	}
	if opts.PublicBaseURL == "" && opts.Bucket != "" {
		opts.PublicBaseURL = fmt.Sprintf("https://%s.s3.amazonaws.com/", opts.Bucket)
	}
	return &Bucket{api: api, opts: opts, logger: log}
}

// List returns every PDF object under the prefix, oldest first.
func (b *Bucket) List(ctx context.Context) ([]domain.Document, error) {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(b.opts.Bucket)}
	if b.opts.Prefix != "" {
		input.Prefix = aws.String(b.opts.Prefix)
	}

	var docs []domain.Document
	pages := s3.NewListObjectsV2Paginator(b.api, input)
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, &domain.RetrievalError{Op: "list", Key: b.opts.Prefix, Err: err}
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == b.opts.StateKey || !strings.HasSuffix(strings.ToLower(key), ".pdf") {
				continue
			}
			docs = append(docs, domain.Document{
				ID:         key,
				Key:        key,
				URL:        b.publicURL(key),
				ModifiedAt: aws.ToTime(obj.LastModified).UTC(),
				Size:       aws.ToInt64(obj.Size),
			})
		}
	}

	ledger.SortDocuments(docs)
	b.debug("listed bucket", "bucket", b.opts.Bucket, "prefix", b.opts.Prefix, "documents", len(docs))
	return docs, nil
}

// Fetch downloads the object body.
func (b *Bucket) Fetch(ctx context.Context, doc domain.Document) ([]byte, error) {
	data, err := b.get(ctx, doc.Key)
	if err != nil {
		return nil, &domain.RetrievalError{Op: "fetch", Key: doc.Key, Err: err}
	}
	return data, nil
}

// Load reads the ledger; a missing object yields an empty state.
func (b *Bucket) Load(ctx context.Context) (ledger.State, error) {
	data, err := b.get(ctx, b.opts.StateKey)
	if err != nil {
		if isNotFound(err) {
			b.debug("no ledger yet", "key", b.opts.StateKey)
			return ledger.New(), nil
		}
		return nil, &domain.RetrievalError{Op: "load state", Key: b.opts.StateKey, Err: err}
	}

	state, err := ledger.Decode(data)
	if err != nil {
		return nil, &domain.RetrievalError{Op: "load state", Key: b.opts.StateKey, Err: err}
	}
	return state, nil
}

// Save writes the ledger to a fresh temporary object, copies it over the ledger key and
// removes the temporary object, so the ledger key is only ever replaced whole.
func (b *Bucket) Save(ctx context.Context, state ledger.State) error {
	data, err := ledger.Encode(state)
	if err != nil {
		return err
	}

	tmpKey := fmt.Sprintf("%s.tmp-%s", b.opts.StateKey, uuid.NewString())
	_, err = b.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.opts.Bucket),
		Key:         aws.String(tmpKey),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", tmpKey, err)
	}

	_, err = b.api.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:      aws.String(b.opts.Bucket),
		Key:         aws.String(b.opts.StateKey),
		CopySource:  aws.String(b.opts.Bucket + "/" + url.PathEscape(tmpKey)),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("swap %s into %s: %w", tmpKey, b.opts.StateKey, err)
	}

	if _, err := b.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.opts.Bucket),
		Key:    aws.String(tmpKey),
	}); err != nil && b.logger != nil {
		b.logger.Warn("leftover temporary ledger object", "key", tmpKey, "error", err)
	}

	b.debug("saved ledger", "key", b.opts.StateKey, "records", len(state))
	return nil
}

func (b *Bucket) get(ctx context.Context, key string) ([]byte, error) {
	out, err := b.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.opts.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()

	reader := io.Reader(out.Body)
	if b.opts.MaxObjectSize > 0 {
		reader = io.LimitReader(out.Body, b.opts.MaxObjectSize+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if b.opts.MaxObjectSize > 0 && int64(len(data)) > b.opts.MaxObjectSize {
		return nil, fmt.Errorf("object exceeds %d bytes", b.opts.MaxObjectSize)
	}
	return data, nil
}

func (b *Bucket) publicURL(key string) string {
	if b.opts.PublicBaseURL == "" {
		return ""
	}
	escaped := strings.ReplaceAll(url.PathEscape(key), "%2F", "/")
	return strings.TrimSuffix(b.opts.PublicBaseURL, "/") + "/" + escaped
}

func (b *Bucket) debug(msg string, args ...any) {
	if b.logger != nil {
		b.logger.Debug(msg, args...)
	}
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
