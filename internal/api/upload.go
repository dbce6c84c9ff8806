package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
)

// Upload posts one file to a pre-signed target as multipart form data: every
// target field first, then the file under the "file" key. Storage backends
// reject a file part that precedes the policy fields.
//
// Content that implements io.Seeker (files on disk) is streamed with a
// computed Content-Length. Other readers are buffered in memory first.
func (c *Client) Upload(ctx context.Context, target UploadTarget, filename string, content io.Reader) error {
	const operation = "upload file"
	if target.URL == "" {
		return fmt.Errorf("%s %s: upload target has no url", operation, filename)
	}

	// The multipart writer emits the preamble and trailer straight into buf,
	// so the file bytes can be spliced between them without copying.
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	keys := make([]string, 0, len(target.Fields))
	for k := range target.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := mw.WriteField(k, target.Fields[k]); err != nil {
			return fmt.Errorf("%s %s: write field %s: %w", operation, filename, k, err)
		}
	}
	if _, err := mw.CreateFormFile("file", filename); err != nil {
		return fmt.Errorf("%s %s: create file part: %w", operation, filename, err)
	}
	head := bytes.Clone(buf.Bytes())
	buf.Reset()
	if err := mw.Close(); err != nil {
		return fmt.Errorf("%s %s: close form: %w", operation, filename, err)
	}
	tail := bytes.Clone(buf.Bytes())

	size, err := remaining(content)
	if err != nil {
		return fmt.Errorf("%s %s: size file: %w", operation, filename, err)
	}
	if size < 0 {
		data, err := io.ReadAll(content)
		if err != nil {
			return fmt.Errorf("%s %s: read file: %w", operation, filename, err)
		}
		content, size = bytes.NewReader(data), int64(len(data))
	}
	length := int64(len(head)) + size + int64(len(tail))
	body := io.MultiReader(bytes.NewReader(head), io.LimitReader(content, size), bytes.NewReader(tail))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.URL, body)
	if err != nil {
		return fmt.Errorf("%s %s: create request: %w", operation, filename, err)
	}
	req.ContentLength = length
	req.Header.Set("Content-Type", mw.FormDataContentType())

	c.logger.InfoContext(ctx, "upload request", "file", filename, "bytes", length)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: do request: %w", operation, filename, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		c.logger.DebugContext(ctx, "upload rejected", "file", filename, "status", resp.StatusCode, "body", string(body))
		return newAPIError(operation, resp.StatusCode, "Failed to upload "+filename)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// remaining returns the unread byte count of a seekable reader, leaving its
// offset unchanged, or -1 when r cannot seek.
func remaining(r io.Reader) (int64, error) {
	s, ok := r.(io.Seeker)
	if !ok {
		return -1, nil
	}
	cur, err := s.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	end, err := s.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	if _, err := s.Seek(cur, io.SeekStart); err != nil {
		return 0, err
	}
	return end - cur, nil
}
