package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pierrec/lz4/v4"
)

// ErrSourceNotFound is returned when a load source does not exist.
var ErrSourceNotFound = errors.New("source not found")

// Codec selects how a load source is decompressed.
type Codec string

const (
	CodecAuto  Codec = ""      // Pick by file extension
	CodecPlain Codec = "plain" // No compression
	CodecGzip  Codec = "gzip"  // .gz
	CodecZstd  Codec = "zstd"  // .zst, .zstd
	CodecLZ4   Codec = "lz4"   // .lz4
)

// ParseCodec maps a load-parameter token to a codec.
func ParseCodec(token string) (Codec, bool) {
	switch c := Codec(strings.ToLower(strings.TrimSpace(token))); c {
	case CodecPlain, CodecGzip, CodecZstd, CodecLZ4:
		return c, true
	}
	return CodecAuto, false
}

// CodecForPath picks a codec from the path's extension.
func CodecForPath(path string) Codec {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz", ".gzip":
		return CodecGzip
	case ".zst", ".zstd":
		return CodecZstd
	case ".lz4":
		return CodecLZ4
	}
	return CodecPlain
}

// Opener opens bulk-load sources. Local paths are read from disk;
// s3://bucket/key paths are read through the configured object store.
//
// The zero value opens local files only.
type Opener struct {
	S3 *minio.Client
}

// S3Config configures an S3-compatible object store.
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// NewS3Client connects to an S3-compatible endpoint. It returns nil when no
// endpoint is configured.
func NewS3Client(cfg S3Config) (*minio.Client, error) {
	if cfg.Endpoint == "" {
		return nil, nil
	}
	return minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
}

// Open returns a reader over the decompressed contents of path. The caller
// must close it.
func (o *Opener) Open(ctx context.Context, path string, codec Codec) (io.ReadCloser, error) {
	raw, err := o.openRaw(ctx, path)
	if err != nil {
		return nil, err
	}
	if codec == CodecAuto {
		codec = CodecForPath(path)
	}
	rc, err := decompress(raw, codec)
	if err != nil {
		raw.Close()
		return nil, fmt.Errorf("open %s as %s: %w", path, codec, err)
	}
	return rc, nil
}

func (o *Opener) openRaw(ctx context.Context, path string) (io.ReadCloser, error) {
	if bucket, key, ok := splitS3Path(path); ok {
		if o.S3 == nil {
			return nil, fmt.Errorf("open %s: no object store configured", path)
		}
		if _, err := o.S3.StatObject(ctx, bucket, key, minio.StatObjectOptions{}); err != nil {
			errResp := minio.ToErrorResponse(err)
			if errResp.Code == "NoSuchKey" || errResp.Code == "NotFound" {
				return nil, fmt.Errorf("open %s: %w", path, ErrSourceNotFound)
			}
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		obj, err := o.S3.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		return obj, nil
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("open %s: %w", path, ErrSourceNotFound)
		}
		return nil, err
	}
	return f, nil
}

// splitS3Path splits s3://bucket/key.
func splitS3Path(path string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(path, "s3://")
	if !found {
		return "", "", false
	}
	bucket, key, found = strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}

func decompress(raw io.ReadCloser, codec Codec) (io.ReadCloser, error) {
	switch codec {
	case CodecPlain:
		return raw, nil
	case CodecGzip:
		zr, err := gzip.NewReader(raw)
		if err != nil {
			return nil, err
		}
		return &stackedReader{Reader: zr, closers: []func() error{zr.Close, raw.Close}}, nil
	case CodecZstd:
		zr, err := zstd.NewReader(raw)
		if err != nil {
			return nil, err
		}
		return &stackedReader{Reader: zr, closers: []func() error{closeZstd(zr), raw.Close}}, nil
	case CodecLZ4:
		return &stackedReader{Reader: lz4.NewReader(raw), closers: []func() error{raw.Close}}, nil
	}
	return nil, fmt.Errorf("unknown codec %q", codec)
}

func closeZstd(d *zstd.Decoder) func() error {
	return func() error {
		d.Close()
		return nil
	}
}

// stackedReader closes a decoder chain innermost first.
type stackedReader struct {
	io.Reader
	closers []func() error
}

func (s *stackedReader) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
