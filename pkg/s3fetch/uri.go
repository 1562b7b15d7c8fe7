package s3fetch

import (
	"errors"
	"path/filepath"
	"strings"
)

const scheme = "s3://"

// IsS3URI reports whether uri names an S3 object rather than a local path.
func IsS3URI(uri string) bool {
	return strings.HasPrefix(uri, scheme)
}

// ParseS3URI splits s3://bucket/key into its bucket and key. Both parts are
// required: a transaction file is always a single object.
func ParseS3URI(uri string) (bucket, key string, err error) {
	if !IsS3URI(uri) {
		return "", "", errors.New("invalid S3 URI: must start with s3://")
	}

	bucket, key, _ = strings.Cut(strings.TrimPrefix(uri, scheme), "/")
	if bucket == "" {
		return "", "", errors.New("invalid S3 URI: missing bucket name")
	}
	if key == "" || strings.HasSuffix(key, "/") {
		return "", "", errors.New("invalid S3 URI: missing object key")
	}
	return bucket, key, nil
}

// localName returns the file name an object is stored under locally. The
// object's suffix is kept so compressed objects are still recognised.
func localName(key string) string {
	return filepath.Base(key)
}
