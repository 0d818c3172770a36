package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/erazemk/gradilisce/internal/model"
)

// StartPastWork opens a past project and returns the key uploads are tagged with.
func (c *Client) StartPastWork(ctx context.Context) (string, error) {
	data, err := c.doJSON(ctx, http.MethodPost, "/api/my-past-work/start", nil, nil)
	if err != nil {
		return "", err
	}
	key := firstString(gjson.ParseBytes(data), "project_key", "projectKey")
	if key == "" {
		return "", errors.New("start response has no project key")
	}
	return key, nil
}

// UploadPastWorkFile uploads one photo, video or document under projectKey.
func (c *Client) UploadPastWorkFile(ctx context.Context, projectKey, filename string, r io.Reader) (*model.Media, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("project_key", projectKey); err != nil {
		return nil, fmt.Errorf("write project key: %w", err)
	}
	if err := writeFile(mw, "file", filename, r); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	data, err := c.do(ctx, http.MethodPost, "/api/my-past-work/upload", nil, &buf, mw.FormDataContentType())
	if err != nil {
		return nil, err
	}
	var m model.Media
	if err := decode(data, &m); err != nil {
		return nil, err
	}
	if m.ID == 0 {
		m.ID = looseID(gjson.ParseBytes(data))
	}
	return &m, nil
}

// CreatePastWork finalises the past project behind projectKey.
func (c *Client) CreatePastWork(ctx context.Context, projectKey, name, address string) (*model.PastProject, error) {
	data, err := c.doJSON(ctx, http.MethodPost, "/api/my-past-work/create", nil, map[string]string{
		"project_key": projectKey,
		"name":        name,
		"address":     address,
	})
	if err != nil {
		return nil, err
	}
	var p model.PastProject
	if err := decode(data, &p); err != nil {
		return nil, err
	}
	if p.ID == 0 {
		p.ID = looseID(gjson.ParseBytes(data))
	}
	return &p, nil
}
