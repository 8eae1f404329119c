package storage

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

type SupabaseStorage struct {
	client *resty.Client
	bucket string
}

func NewSupabaseStorage(supabaseURL, serviceKey, bucket string) *SupabaseStorage {
	client := resty.New().
		SetBaseURL(strings.TrimRight(supabaseURL, "/") + "/storage/v1").
		SetTimeout(2 * time.Minute).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetAuthToken(serviceKey).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})
	return &SupabaseStorage{client: client, bucket: bucket}
}

func (s *SupabaseStorage) objectPath(key string) string {
	return fmt.Sprintf("/object/%s/%s", s.bucket, strings.TrimLeft(key, "/"))
}

func (s *SupabaseStorage) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", contentType).
		SetHeader("x-upsert", "false").
		SetBody(data).
		Post(s.objectPath(key))
	if err != nil {
		return fmt.Errorf("upload file: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("upload failed (%d): %s", resp.StatusCode(), resp.String())
	}
	return nil
}

func (s *SupabaseStorage) Download(ctx context.Context, key string) ([]byte, error) {
	resp, err := s.client.R().SetContext(ctx).Get(s.objectPath(key))
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound || resp.StatusCode() == http.StatusBadRequest && strings.Contains(resp.String(), "not_found") {
		return nil, ErrNotFound
	}
	if resp.IsError() {
		return nil, fmt.Errorf("download failed (%d)", resp.StatusCode())
	}
	return resp.Body(), nil
}

func (s *SupabaseStorage) Delete(ctx context.Context, key string) error {
	resp, err := s.client.R().SetContext(ctx).Delete(s.objectPath(key))
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	if resp.IsError() && resp.StatusCode() != http.StatusNotFound {
		return fmt.Errorf("delete failed (%d)", resp.StatusCode())
	}
	return nil
}
