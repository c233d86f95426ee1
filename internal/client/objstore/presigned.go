package objstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path"
	"strings"
)

const maxErrorBody = 4 << 10

// FilenamePlaceholder in a form field value is replaced by the uploaded
// object's file name.
const FilenamePlaceholder = "${filename}"

// PresignedPost is a reusable browser-style upload target: a URL plus the
// signed form fields every POST must carry.
type PresignedPost struct {
	URL    string
	Fields map[string]string

	HTTPClient *http.Client
}

func (p *PresignedPost) client() *http.Client {
	if p.HTTPClient != nil {
		return p.HTTPClient
	}
	return http.DefaultClient
}

// Put streams r as the "file" part of a multipart POST. The body length is
// computed up front so storage backends that reject chunked uploads accept it.
func (p *PresignedPost) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	var head bytes.Buffer
	mw := multipart.NewWriter(&head)

	filename := path.Base(key)
	for name, value := range p.Fields {
		if err := mw.WriteField(name, strings.ReplaceAll(value, FilenamePlaceholder, filename)); err != nil {
			return err
		}
	}
	if _, ok := p.Fields["key"]; !ok {
		if err := mw.WriteField("key", key); err != nil {
			return err
		}
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	h.Set("Content-Type", "application/octet-stream")
	if _, err := mw.CreatePart(h); err != nil {
		return err
	}
	prefix := head.Len()

	if err := mw.Close(); err != nil {
		return err
	}
	tail := append([]byte(nil), head.Bytes()[prefix:]...)
	head.Truncate(prefix)

	body := io.MultiReader(bytes.NewReader(head.Bytes()), io.LimitReader(r, size), bytes.NewReader(tail))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, body)
	if err != nil {
		return err
	}
	req.ContentLength = int64(head.Len()) + size + int64(len(tail))
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return checkUpload(resp)
}

// PutPresigned uploads r with a single PUT to a presigned URL.
func PutPresigned(ctx context.Context, client *http.Client, url string, r io.Reader, size int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, r)
	if err != nil {
		return err
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", "application/octet-stream")

	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return checkUpload(resp)
}

func checkUpload(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &UploadError{StatusCode: resp.StatusCode, Body: string(b)}
}
