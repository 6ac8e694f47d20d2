package documents

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"ragcore/internal/objectstore"
)

// Source identifies where ingestion content comes from: either a path on
// the local filesystem or an s3://bucket/key URI resolved through an
// objectstore.ObjectStore.
type Source struct {
	// Name is the original reference (local path or s3 URI), used to
	// derive both the document id and the parser extension.
	Name string
	Open func(ctx context.Context) (io.ReadCloser, error)
}

// ResolveSource classifies ref as a local path or an s3:// URI and returns
// a Source that opens it lazily. buckets is only used (and may be nil) when
// ref carries the s3:// scheme.
func ResolveSource(ref string, buckets objectstore.BucketClient) (Source, error) {
	if bucket, key, ok := parseS3URI(ref); ok {
		if buckets == nil {
			return Source{}, &ParseError{Kind: CorruptInput, Message: "s3 source requires a configured object store: " + ref}
		}
		return Source{
			Name: ref,
			Open: func(ctx context.Context) (io.ReadCloser, error) {
				rc, _, err := buckets.Bucket(bucket).Get(ctx, key)
				return rc, err
			},
		}, nil
	}

	return Source{
		Name: ref,
		Open: func(ctx context.Context) (io.ReadCloser, error) {
			return os.Open(ref)
		},
	}, nil
}

// Extension returns the lowercase file extension (including the leading
// dot) used to resolve a Parser.
func (s Source) Extension() string {
	return strings.ToLower(filepath.Ext(s.Name))
}

// parseS3URI splits "s3://bucket/key/with/slashes" into bucket and key.
// ResolveSource selects the bucket through BucketClient.Bucket and reads the
// key from it; a URI with no "/" after the bucket yields an empty key.
func parseS3URI(ref string) (bucket, key string, ok bool) {
	const scheme = "s3://"
	if !strings.HasPrefix(ref, scheme) {
		return "", "", false
	}
	rest := strings.TrimPrefix(ref, scheme)
	idx := strings.Index(rest, "/")
	if idx < 0 {
		return rest, "", true
	}
	return rest[:idx], rest[idx+1:], true
}
