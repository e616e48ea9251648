package appdata

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/sony/gobreaker"

	"github.com/omigeot/server/internal/domain"
)

// folderMarker keeps empty folders visible in a bucket, which has no directories.
const folderMarker = ".folder"

// deleteBatchSize is the DeleteObjects limit per request.
const deleteBatchSize = 1000

// S3API is the subset of *s3.Client the store uses.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Store keeps app data under s3://{bucket}/appdata_{instance}/{app}/.
// Every call goes through a circuit breaker so a failing bucket fails fast.
type S3Store struct {
	client S3API
	bucket string
	prefix string
	cb     *gobreaker.CircuitBreaker
}

func NewS3(client S3API, bucket, instanceID, app string) (*S3Store, error) {
	if err := validName(app); err != nil {
		return nil, err
	}

	settings := gobreaker.Settings{
		Name:        "appdata-s3",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || isS3NotFound(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("App data circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	}

	return &S3Store{
		client: client,
		bucket: bucket,
		prefix: "appdata_" + instanceID + "/" + app + "/",
		cb:     gobreaker.NewCircuitBreaker(settings),
	}, nil
}

func (s *S3Store) GetFolder(ctx context.Context, name string) (domain.Folder, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	ok, err := s.exists(ctx, s.folderPrefix(name)+folderMarker)
	if err != nil {
		return nil, fmt.Errorf("get folder %q: %w", name, err)
	}
	if !ok {
		return nil, fmt.Errorf("folder %q: %w", name, domain.ErrNotFound)
	}
	return &s3Folder{store: s, name: name}, nil
}

func (s *S3Store) NewFolder(ctx context.Context, name string) (domain.Folder, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	if err := s.put(ctx, s.folderPrefix(name)+folderMarker, nil); err != nil {
		return nil, fmt.Errorf("create folder %q: %w", name, err)
	}
	return &s3Folder{store: s, name: name}, nil
}

func (s *S3Store) GetDirectoryListing(ctx context.Context) ([]domain.Folder, error) {
	var folders []domain.Folder
	err := s.list(ctx, s.prefix, "/", func(out *s3.ListObjectsV2Output) {
		for _, p := range out.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(p.Prefix), s.prefix), "/")
			if name != "" {
				folders = append(folders, &s3Folder{store: s, name: name})
			}
		}
	})
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	return folders, nil
}

func (s *S3Store) folderPrefix(name string) string {
	return s.prefix + name + "/"
}

func (s *S3Store) exists(ctx context.Context, key string) (bool, error) {
	_, err := s.cb.Execute(func() (any, error) {
		return s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
	})
	if isS3NotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *S3Store) put(ctx context.Context, key string, data []byte) error {
	_, err := s.cb.Execute(func() (any, error) {
		return s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(key),
			Body:          bytes.NewReader(data),
			ContentLength: aws.Int64(int64(len(data))),
			ContentType:   aws.String(detectMimeType(path.Base(key), sniffPrefix(data))),
		})
	})
	return err
}

func (s *S3Store) list(ctx context.Context, prefix, delimiter string, page func(*s3.ListObjectsV2Output)) error {
	in := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}
	if delimiter != "" {
		in.Delimiter = aws.String(delimiter)
	}

	for {
		v, err := s.cb.Execute(func() (any, error) {
			return s.client.ListObjectsV2(ctx, in)
		})
		if err != nil {
			return err
		}
		out := v.(*s3.ListObjectsV2Output)
		page(out)

		if !aws.ToBool(out.IsTruncated) {
			return nil
		}
		in.ContinuationToken = out.NextContinuationToken
	}
}

func (s *S3Store) deleteKeys(ctx context.Context, keys []string) error {
	for start := 0; start < len(keys); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(keys))

		ids := make([]types.ObjectIdentifier, 0, end-start)
		for _, k := range keys[start:end] {
			ids = append(ids, types.ObjectIdentifier{Key: aws.String(k)})
		}

		v, err := s.cb.Execute(func() (any, error) {
			return s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
				Bucket: aws.String(s.bucket),
				Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
			})
		})
		if err != nil {
			return err
		}
		if out := v.(*s3.DeleteObjectsOutput); len(out.Errors) > 0 {
			first := out.Errors[0]
			return fmt.Errorf("delete %s: %s", aws.ToString(first.Key), aws.ToString(first.Message))
		}
	}
	return nil
}

type s3Folder struct {
	store *S3Store
	name  string
}

func (f *s3Folder) Name() string { return f.name }

func (f *s3Folder) FileExists(ctx context.Context, name string) (bool, error) {
	if err := validName(name); err != nil {
		return false, err
	}
	return f.store.exists(ctx, f.key(name))
}

func (f *s3Folder) GetFile(ctx context.Context, name string) (domain.File, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	v, err := f.store.cb.Execute(func() (any, error) {
		return f.store.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(f.store.bucket),
			Key:    aws.String(f.key(name)),
		})
	})
	if isS3NotFound(err) {
		return nil, fmt.Errorf("file %s/%s: %w", f.name, name, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("head %s/%s: %w", f.name, name, err)
	}

	head := v.(*s3.HeadObjectOutput)
	return &s3File{
		folder:   f,
		name:     name,
		size:     aws.ToInt64(head.ContentLength),
		mtime:    aws.ToTime(head.LastModified),
		mimeType: aws.ToString(head.ContentType),
	}, nil
}

func (f *s3Folder) NewFile(ctx context.Context, name string) (domain.File, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	if err := f.store.put(ctx, f.key(name), nil); err != nil {
		return nil, fmt.Errorf("create %s/%s: %w", f.name, name, err)
	}
	return &s3File{folder: f, name: name, mtime: time.Now()}, nil
}

func (f *s3Folder) GetDirectoryListing(ctx context.Context) ([]domain.File, error) {
	prefix := f.store.folderPrefix(f.name)

	var files []domain.File
	err := f.store.list(ctx, prefix, "/", func(out *s3.ListObjectsV2Output) {
		for _, obj := range out.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			if name == folderMarker || name == "" {
				continue
			}
			files = append(files, &s3File{
				folder: f,
				name:   name,
				size:   aws.ToInt64(obj.Size),
				mtime:  aws.ToTime(obj.LastModified),
			})
		}
	})
	if err != nil {
		return nil, fmt.Errorf("list folder %q: %w", f.name, err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name() < files[j].Name() })
	return files, nil
}

// Delete removes every object under the folder prefix, marker included.
func (f *s3Folder) Delete(ctx context.Context) error {
	var keys []string
	err := f.store.list(ctx, f.store.folderPrefix(f.name), "", func(out *s3.ListObjectsV2Output) {
		for _, obj := range out.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	})
	if err != nil {
		return fmt.Errorf("list folder %q: %w", f.name, err)
	}
	if err := f.store.deleteKeys(ctx, keys); err != nil {
		return fmt.Errorf("delete folder %q: %w", f.name, err)
	}
	return nil
}

func (f *s3Folder) key(name string) string {
	return f.store.folderPrefix(f.name) + name
}

type s3File struct {
	folder   *s3Folder
	name     string
	size     int64
	mtime    time.Time
	mimeType string
}

func (f *s3File) Name() string     { return f.name }
func (f *s3File) Size() int64      { return f.size }
func (f *s3File) MTime() time.Time { return f.mtime }

func (f *s3File) MimeType() string {
	if f.mimeType != "" {
		return f.mimeType
	}
	return detectMimeType(f.name, nil)
}

func (f *s3File) GetContent(ctx context.Context) ([]byte, error) {
	key := f.folder.key(f.name)
	v, err := f.folder.store.cb.Execute(func() (any, error) {
		out, err := f.folder.store.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(f.folder.store.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return nil, err
		}
		defer func() { _ = out.Body.Close() }()
		return io.ReadAll(out.Body)
	})
	if isS3NotFound(err) {
		return nil, fmt.Errorf("file %s: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return v.([]byte), nil
}

func (f *s3File) PutContent(ctx context.Context, data []byte) error {
	key := f.folder.key(f.name)
	if err := f.folder.store.put(ctx, key, data); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	f.size = int64(len(data))
	f.mtime = time.Now()
	f.mimeType = detectMimeType(f.name, sniffPrefix(data))
	return nil
}

func (f *s3File) Delete(ctx context.Context) error {
	key := f.folder.key(f.name)
	_, err := f.folder.store.cb.Execute(func() (any, error) {
		return f.folder.store.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(f.folder.store.bucket),
			Key:    aws.String(key),
		})
	})
	if err != nil && !isS3NotFound(err) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// isS3NotFound covers GetObject's NoSuchKey and HeadObject's bodiless 404.
func isS3NotFound(err error) bool {
	if err == nil {
		return false
	}
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
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
