// Package storage writes per-host probe artifacts to disk and, optionally,
// mirrors them to a Supabase Storage bucket.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"time"
)

// Client provides methods to interact with Supabase Storage
type Client struct {
	baseURL    string
	serviceKey string
	bucket     string
	httpClient *http.Client
}

// New creates a new Storage client for bucket
func New(supabaseURL, serviceKey, bucket string) *Client {
	return &Client{
		baseURL:    supabaseURL + "/storage/v1",
		serviceKey: serviceKey,
		bucket:     bucket,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Upload uploads data to the given object path in the client's bucket
// Returns the full path of the uploaded file
func (c *Client) Upload(ctx context.Context, objectPath string, data []byte, contentType string) (string, error) {
	url := fmt.Sprintf("%s/object/%s/%s", c.baseURL, c.bucket, objectPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "true") // Overwrite if exists

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, string(body))
	}

	return fmt.Sprintf("%s/%s", c.bucket, objectPath), nil
}

// MirrorHost uploads the head and body artifacts that w holds for host.
func (c *Client) MirrorHost(ctx context.Context, w *Writer, host string) error {
	artifacts := []struct {
		local       string
		remote      string
		contentType string
	}{
		{w.HeadPath(host), path.Join(headDir, host+".yml"), "application/yaml"},
		{w.BodyPath(host), path.Join(bodyDir, host+".html"), "text/html"},
	}

	for _, a := range artifacts {
		data, err := os.ReadFile(a.local)
		if err != nil {
			return fmt.Errorf("read artifact %s: %w", a.local, err)
		}
		if _, err := c.Upload(ctx, a.remote, data, a.contentType); err != nil {
			return err
		}
	}
	return nil
}
