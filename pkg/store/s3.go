package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pixperk/objmutex/pkg/config"
	"github.com/pixperk/objmutex/pkg/types"
)

// S3 or any S3 compatible service
// LastModified is the server's timestamp, so every worker shares one clock
type S3Store struct {
	client   *minio.Client
	bucket   string
	pageSize int
}

func NewS3Store(cfg config.StoreConfig, bucket string) (*S3Store, error) {
	// without explicit keys fall back to the usual AWS sources
	var creds *credentials.Credentials
	if cfg.AccessKey != "" {
		creds = credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, "")
	} else {
		creds = credentials.NewChainCredentials([]credentials.Provider{
			&credentials.EnvAWS{},
			&credentials.FileAWSCredentials{},
			&credentials.IAM{Client: &http.Client{Transport: http.DefaultTransport}},
		})
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  creds,
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	return newS3Store(client, bucket, cfg.PageSize), nil
}

func newS3Store(client *minio.Client, bucket string, pageSize int) *S3Store {
	if pageSize <= 0 || pageSize > 1000 {
		pageSize = 1000
	}
	return &S3Store{client: client, bucket: bucket, pageSize: pageSize}
}

func (s *S3Store) Get(ctx context.Context, key string) (*types.Object, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, mapS3Error(err)
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		return nil, mapS3Error(err)
	}

	body, err := io.ReadAll(obj)
	if err != nil {
		return nil, mapS3Error(err)
	}

	return &types.Object{
		ObjectInfo: types.ObjectInfo{Key: key, LastModified: info.LastModified, Size: info.Size},
		Body:       body,
	}, nil
}

func (s *S3Store) Head(ctx context.Context, key string) (types.ObjectInfo, error) {
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return types.ObjectInfo{}, mapS3Error(err)
	}
	return types.ObjectInfo{Key: key, LastModified: info.LastModified, Size: info.Size}, nil
}

func (s *S3Store) Put(ctx context.Context, key string, body []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	return err
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	if err := mapS3Error(err); err != nil && err != ErrNotFound {
		return err
	}
	return nil
}

// reads one page past the limit to learn whether the listing continues
func (s *S3Store) List(ctx context.Context, prefix, token string) (types.ListPage, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	objectCh := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:     prefix,
		StartAfter: token,
		Recursive:  true,
		MaxKeys:    s.pageSize,
	})

	var page types.ListPage
	for object := range objectCh {
		if object.Err != nil {
			return types.ListPage{}, mapS3Error(object.Err)
		}
		if len(page.Objects) == s.pageSize {
			page.NextToken = page.Objects[len(page.Objects)-1].Key
			break
		}
		page.Objects = append(page.Objects, types.ObjectInfo{
			Key:          object.Key,
			LastModified: object.LastModified,
			Size:         object.Size,
		})
	}
	return page, nil
}

func (s *S3Store) Close() error {
	return nil
}

// a missing key maps to ErrNotFound, a missing bucket stays an error
func mapS3Error(err error) error {
	if err == nil {
		return nil
	}
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.Code == "NoSuchKey":
		return ErrNotFound
	case resp.StatusCode == http.StatusNotFound && resp.Code != "NoSuchBucket":
		return ErrNotFound
	}
	return err
}
