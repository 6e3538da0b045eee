package fastkale

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

const (
	DefaultBaseURL = "http://localhost:54321/functions/v1"
)

// DeviceType selects the device headers sent with a request.
type DeviceType string

const (
	DeviceNone   DeviceType = ""
	DeviceMobile DeviceType = "mobile"
	DeviceLaptop DeviceType = "laptop"
)

var deviceUserAgents = map[DeviceType]string{
	DeviceMobile: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Mobile/15E148",
	DeviceLaptop: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15",
}

// ParseDevice parses a device name. Empty input means no device.
func ParseDevice(s string) (DeviceType, error) {
	switch DeviceType(strings.ToLower(strings.TrimSpace(s))) {
	case DeviceNone:
		return DeviceNone, nil
	case DeviceMobile:
		return DeviceMobile, nil
	case DeviceLaptop:
		return DeviceLaptop, nil
	}
	return DeviceNone, fmt.Errorf("unknown device %q (want mobile or laptop)", s)
}

// Headers returns the extra request headers for the device.
func (d DeviceType) Headers() map[string]string {
	ua, ok := deviceUserAgents[d]
	if !ok {
		return nil
	}
	return map[string]string{
		"X-Device-Type": string(d),
		"User-Agent":    ua,
	}
}

// FormFile is a file sent as one part of a multipart request.
type FormFile struct {
	Field       string
	Name        string
	ContentType string
	Data        []byte
}

// CallOptions configures a single backend call.
type CallOptions struct {
	// Method defaults to GET.
	Method string
	// Body is JSON encoded. It is ignored for GET and when Files is set.
	Body  any
	Token string
	Files []FormFile
	// Device overrides the client default device when set.
	Device DeviceType
}

// CallResult is the outcome of a call that reached the backend.
type CallResult struct {
	Status int
	OK     bool
	// Body is the decoded JSON value, or the raw text when the response
	// is not JSON.
	Body           any
	RequestPayload any
	RequestHeaders map[string]string

	raw  []byte
	json bool
}

// Raw returns the undecoded response body.
func (r *CallResult) Raw() []byte {
	return r.raw
}

type ClientOpts struct {
	BaseURL string
	Device  DeviceType
}

type Client struct {
	httpClient *resty.Client
	baseURL    string
	device     DeviceType
}

func NewClient(opts ClientOpts) *Client {
	c := Client{baseURL: DefaultBaseURL, device: opts.Device}
	if opts.BaseURL != "" {
		c.baseURL = opts.BaseURL
	}
	c.baseURL = strings.TrimRight(c.baseURL, "/")
	c.httpClient = resty.New().
		SetDebug(false).
		SetBaseURL(c.baseURL).
		SetHeader("Accept", "application/json")

	return &c
}

// BaseURL returns the base URL all paths are joined to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Device returns the default device of the client.
func (c *Client) Device() DeviceType {
	return c.device
}

// URL joins path to the base URL with a single slash.
func (c *Client) URL(path string) string {
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

// Call performs one request against the backend. A non-2xx status is not
// an error; inspect CallResult.OK. Errors are transport failures only.
func (c *Client) Call(ctx context.Context, path string, opts CallOptions) (*CallResult, error) {
	method := strings.ToUpper(opts.Method)
	if method == "" {
		method = http.MethodGet
	}

	headers := map[string]string{}
	device := c.device
	if opts.Device != DeviceNone {
		device = opts.Device
	}
	for k, v := range device.Headers() {
		headers[k] = v
	}
	if opts.Token != "" {
		headers["Authorization"] = "Bearer " + opts.Token
	}

	req := c.httpClient.R().SetContext(ctx)

	var payload any
	switch {
	case len(opts.Files) > 0:
		names := make([]string, 0, len(opts.Files))
		for _, f := range opts.Files {
			req.SetMultipartField(f.Field, f.Name, f.ContentType, bytes.NewReader(f.Data))
			names = append(names, f.Name)
		}
		payload = map[string]any{"files": names}
	case opts.Body != nil && method != http.MethodGet:
		headers["Content-Type"] = "application/json"
		req.SetBody(opts.Body)
		payload = opts.Body
	}
	req.SetHeaders(headers)

	url := "/" + strings.TrimLeft(path, "/")
	res, err := req.Execute(method, url)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	result := &CallResult{
		Status:         res.StatusCode(),
		OK:             res.IsSuccess(),
		RequestPayload: payload,
		RequestHeaders: headers,
		raw:            res.Body(),
	}
	result.Body, result.json = decodeBody(res.Header().Get("Content-Type"), res.Body())

	log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", result.Status).
		Msg("backend call")

	return result, nil
}

// decodeBody decodes a JSON response body, falling back to text when the
// content type is not JSON or the body does not parse.
func decodeBody(contentType string, raw []byte) (any, bool) {
	if strings.Contains(contentType, "application/json") {
		var v any
		if err := json.Unmarshal(raw, &v); err == nil {
			return v, true
		}
	}
	return string(raw), false
}
