package files

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"imagedesk/core"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client talks to a remote file service over its REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

func (c *Client) ListImages(ctx context.Context, owner core.Owner) ([]core.ImageInfo, error) {
	u := c.baseURL + "/api/v1/owners/" + url.PathEscape(owner.OwnerID) + "/images"
	if owner.SecondaryOwnerID != "" {
		u += "?secondaryOwnerId=" + url.QueryEscape(owner.SecondaryOwnerID)
	}
	var infos []core.ImageInfo
	if err := c.doJSON(ctx, http.MethodGet, u, nil, &infos); err != nil {
		return nil, err
	}
	return infos, nil
}

func (c *Client) FetchPixels(ctx context.Context, imageID string, width int) (io.ReadCloser, error) {
	u := c.baseURL + "/api/v1/images/" + url.PathEscape(imageID) + "/preview"
	if width > 0 {
		u += "?width=" + strconv.Itoa(width)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}
	return resp.Body, nil
}

func (c *Client) RequestUploadSlot(ctx context.Context, meta core.UploadMetadata) (*core.UploadSlot, error) {
	var slot core.UploadSlot
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/api/v1/uploads", meta, &slot); err != nil {
		return nil, err
	}
	return &slot, nil
}

// Transfer PUTs the bytes to the slot's transfer URL, which may point at the
// file service itself or straight at an object store.
func (c *Client) Transfer(ctx context.Context, slot *core.UploadSlot, data []byte, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, slot.TransferURL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.ContentLength = int64(len(data))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return statusError(resp)
	}
	return nil
}

func (c *Client) ConfirmUpload(ctx context.Context, conf core.UploadConfirmation) (*core.ConfirmedUpload, error) {
	var confirmed core.ConfirmedUpload
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/api/v1/uploads/confirm", conf, &confirmed); err != nil {
		return nil, err
	}
	return &confirmed, nil
}

func (c *Client) doJSON(ctx context.Context, method, u string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return statusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", u, err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
		return fmt.Errorf("%s %s: %d %s", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, payload.Error)
	}
	return fmt.Errorf("%s %s: unexpected status %d", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode)
}
