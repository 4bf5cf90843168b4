package backing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/mplewis/persist/codec"
	"github.com/mplewis/persist/kv"
)

// S3API is the subset of *s3.Client the backend uses.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3 stores data in AWS S3 or any S3-compatible object store.
type S3 struct {
	bucket    string
	namespace string
	client    S3API
	log       *zap.Logger
}

// S3Args are the arguments for creating a new S3 backing.
type S3Args struct {
	Bucket    string          // Optional. The bucket spill keys are stored in. Resolved s3:// keys name their own bucket.
	Namespace string          // Optional. The prefix of every spilled object name.
	Region    string          // Optional. Used only when Client is not provided.
	Endpoint  string          // Optional. Custom endpoint for S3-compatible stores. Used only when Client is not provided.
	PathStyle bool            // Optional. Use path-style addressing. Used only when Client is not provided.
	Client    S3API           // Optional. The S3 client to use. If not provided, a client will be automatically configured from your environment.
	Context   context.Context // Optional. The context used to load the AWS configuration. Defaults to context.Background().
	Logger    *zap.Logger     // Optional.
}

// NewS3 creates a new backing which stores data in AWS S3.
func NewS3(args S3Args) (*S3, error) {
	if args.Context == nil {
		args.Context = context.Background()
	}
	if args.Logger == nil {
		args.Logger = zap.NewNop()
	}
	if args.Client == nil {
		var opts []func(*config.LoadOptions) error
		if args.Region != "" {
			opts = append(opts, config.WithRegion(args.Region))
		}
		if args.Endpoint != "" {
			endpoint := args.Endpoint
			resolver := aws.EndpointResolverFunc(func(service, region string) (aws.Endpoint, error) {
				return aws.Endpoint{URL: endpoint, SigningRegion: region}, nil
			})
			opts = append(opts, config.WithEndpointResolver(resolver))
		}
		cfg, err := config.LoadDefaultConfig(args.Context, opts...)
		if err != nil {
			return nil, err
		}
		pathStyle := args.PathStyle
		args.Client = s3.NewFromConfig(cfg, func(o *s3.Options) {
			o.UsePathStyle = pathStyle
		})
	}
	return &S3{
		bucket:    args.Bucket,
		namespace: strings.Trim(args.Namespace, "/"),
		client:    args.Client,
		log:       args.Logger.With(zap.String("backend", "s3")),
	}, nil
}

// Name returns a unique identifier for this backend.
func (s *S3) Name() string {
	return fmt.Sprintf("s3:%s/%s", s.bucket, s.namespace)
}

// ns appends the namespace prefix to the given object name.
func (s *S3) ns(name string) string {
	if s.namespace == "" {
		return name
	}
	return path.Join(s.namespace, name)
}

// object maps a key to a bucket and object name. Resolved keys carry their
// address; other keys spill into the configured bucket.
func (s *S3) object(k kv.Key) (bucket, name string, err error) {
	if k.HasPrefix("s3://") || k.HasPrefix("s3n://") {
		u, err := url.Parse(string(k.Bytes()))
		if err != nil {
			return "", "", fmt.Errorf("%w: bad key address %s: %v", ErrIO, k, err)
		}
		return splitS3(u)
	}
	if s.bucket == "" {
		return "", "", ErrNoRoot
	}
	return s.bucket, s.ns(codec.IceObjectName(k)), nil
}

// splitS3 extracts the bucket and object name from an s3 address.
func splitS3(u *url.URL) (bucket, name string, err error) {
	name = strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || name == "" {
		return "", "", fmt.Errorf("%w: %s does not name an object", ErrIO, u)
	}
	return u.Host, name, nil
}

// Store puts the value's bytes into its object.
func (s *S3) Store(ctx context.Context, v *kv.Value) error {
	bucket, name, err := s.object(v.Key)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(name),
		Body:   bytes.NewReader(v.Data),
	})
	if err != nil {
		s.log.Error("Failed to put object", zap.String("bucket", bucket), zap.String("key", name), zap.Error(err))
		return fmt.Errorf("%w: put s3://%s/%s: %v", ErrIO, bucket, name, err)
	}
	s.log.Debug("Stored value", zap.String("bucket", bucket), zap.String("key", name), zap.Int("size", len(v.Data)))
	return nil
}

// Load returns the bytes of the value's object.
func (s *S3) Load(ctx context.Context, v *kv.Value) ([]byte, error) {
	bucket, name, err := s.object(v.Key)
	if err != nil {
		return nil, err
	}
	return s.get(ctx, bucket, name)
}

// get reads a whole object.
func (s *S3) get(ctx context.Context, bucket, name string) ([]byte, error) {
	r, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(name),
	})
	if notFound(err) {
		return nil, fmt.Errorf("%w: s3://%s/%s", ErrNotFound, bucket, name)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get s3://%s/%s: %v", ErrIO, bucket, name, err)
	}
	defer r.Body.Close()
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read s3://%s/%s: %v", ErrIO, bucket, name, err)
	}
	return data, nil
}

// Delete removes the value's object. S3 deletes are already idempotent.
func (s *S3) Delete(ctx context.Context, v *kv.Value) error {
	bucket, name, err := s.object(v.Key)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(name),
	})
	if err != nil && !notFound(err) {
		return fmt.Errorf("%w: delete s3://%s/%s: %v", ErrIO, bucket, name, err)
	}
	return nil
}

// UsableSpace is unknown for object storage.
func (s *S3) UsableSpace() int64 {
	return UnknownSpace
}

// TotalSpace is unknown for object storage.
func (s *S3) TotalSpace() int64 {
	return UnknownSpace
}

// Fetch reads the object at an s3 or s3n address.
func (s *S3) Fetch(ctx context.Context, uri *url.URL) ([]byte, error) {
	bucket, name, err := splitS3(uri)
	if err != nil {
		return nil, err
	}
	return s.get(ctx, bucket, name)
}

// Head checks that the object at an s3 or s3n address exists.
func (s *S3) Head(ctx context.Context, uri *url.URL) error {
	bucket, name, err := splitS3(uri)
	if err != nil {
		return err
	}
	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(name),
	})
	if notFound(err) {
		return fmt.Errorf("%w: %s", ErrNotFound, uri)
	}
	if err != nil {
		return fmt.Errorf("%w: head %s: %v", ErrIO, uri, err)
	}
	return nil
}

// ResolveURI checks that an s3 address exists and returns a key naming it.
func (s *S3) ResolveURI(ctx context.Context, uri *url.URL) (kv.Key, error) {
	scheme := strings.ToLower(uri.Scheme)
	if scheme != "s3" && scheme != "s3n" {
		return kv.Key{}, fmt.Errorf("%w: %s on %s", ErrUnsupportedScheme, uri.Scheme, s.Name())
	}
	if err := s.Head(ctx, uri); err != nil {
		return kv.Key{}, err
	}
	u := *uri
	u.Scheme = scheme
	return kv.MakeString(u.String()), nil
}

// notFound checks if an error is an S3 NoSuchKey or NotFound error.
func notFound(err error) bool {
	var aerr smithy.APIError
	if !errors.As(err, &aerr) {
		return false
	}
	switch aerr.ErrorCode() {
	case "NoSuchKey", "NotFound":
		return true
	default:
		return false
	}
}
