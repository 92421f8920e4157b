package tilestore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Store serves tiles from S3 objects. Objects follow the same layout as
// DirStore paths: <prefix>/<fragmentID>/<attr>_<tileIdx>.fix (.off/.var for
// var-sized attributes).
//
// S3Store is safe for concurrent Fetch calls.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Store creates an S3Store using the default AWS configuration.
func NewS3Store(ctx context.Context, bucket, prefix string) (*S3Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return NewS3StoreWithClient(s3.NewFromConfig(cfg), bucket, prefix), nil
}

// NewS3StoreWithClient creates an S3Store with an existing S3 client.
func NewS3StoreWithClient(client *s3.Client, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3Store) key(fragmentID, attr string, tileIdx uint64, suffix string) string {
	key := fmt.Sprintf("%s/%s_%d%s", fragmentID, attr, tileIdx, suffix)
	if s.prefix != "" {
		key = s.prefix + "/" + key
	}
	return key
}

// getObject downloads one object, reporting missing keys distinctly.
func (s *S3Store) getObject(ctx context.Context, key string) ([]byte, bool, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get object s3://%s/%s: %w", s.bucket, key, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("read object s3://%s/%s: %w", s.bucket, key, err)
	}
	return data, true, nil
}

// Fetch implements Store.
func (s *S3Store) Fetch(ctx context.Context, fragmentID, attr string, tileIdx uint64) (Tile, error) {
	fixed, ok, err := s.getObject(ctx, s.key(fragmentID, attr, tileIdx, fixedSuffix))
	if err != nil {
		return Tile{}, err
	}
	if ok {
		return Tile{Fixed: fixed}, nil
	}

	offKey := s.key(fragmentID, attr, tileIdx, offSuffix)
	offData, ok, err := s.getObject(ctx, offKey)
	if err != nil {
		return Tile{}, err
	}
	if !ok {
		return Tile{}, fmt.Errorf("%w: s3://%s/%s", ErrNotFound,
			s.bucket, s.key(fragmentID, attr, tileIdx, fixedSuffix))
	}
	if len(offData)%8 != 0 {
		return Tile{}, fmt.Errorf("%w: offsets object %s has %d bytes",
			ErrCorruptTile, offKey, len(offData))
	}

	varData, ok, err := s.getObject(ctx, s.key(fragmentID, attr, tileIdx, varSuffix))
	if err != nil {
		return Tile{}, err
	}
	if !ok {
		varData = nil
	}

	off := make([]uint64, len(offData)/8)
	for i := range off {
		off[i] = binary.LittleEndian.Uint64(offData[i*8:])
	}
	return Tile{Off: off, Var: varData}, nil
}
