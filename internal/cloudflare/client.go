// Package cloudflare uploads worker scripts through the Cloudflare v4 API.
package cloudflare

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"go.uber.org/multierr"

	"github.com/JakeFAU/edge-sitemaps/internal/fetch"
	"github.com/JakeFAU/edge-sitemaps/internal/script"
)

// DefaultAPIURL is the public API root.
const DefaultAPIURL = "https://api.cloudflare.com/client/v4/"

const mainModule = "worker.js"

// ErrInvalidAuth is returned when neither a token nor an email+key pair is configured.
var ErrInvalidAuth = errors.New("invalid cloudflare auth config")

// Auth holds either a bearer token or an email+key pair. Token wins when both are set.
type Auth struct {
	Token string `mapstructure:"token" yaml:"token,omitempty"`
	Email string `mapstructure:"email" yaml:"email,omitempty"`
	Key   string `mapstructure:"key" yaml:"key,omitempty"`
}

func (a Auth) headers() (http.Header, error) {
	switch {
	case a.Token != "":
		return http.Header{"Authorization": {"Bearer " + a.Token}}, nil
	case a.Email != "" && a.Key != "":
		return http.Header{"X-Auth-Email": {a.Email}, "X-Auth-Key": {a.Key}}, nil
	default:
		return nil, ErrInvalidAuth
	}
}

// Client uploads scripts for one set of credentials.
type Client struct {
	doer              fetch.Doer
	apiURL            string
	auth              http.Header
	compatibilityDate string
}

// Option customizes a Client.
type Option func(*Client)

// WithCompatibilityDate pins the runtime compatibility date sent with uploads.
func WithCompatibilityDate(date string) Option {
	return func(c *Client) {
		c.compatibilityDate = date
	}
}

// NewClient validates auth and returns a Client. An empty apiURL selects DefaultAPIURL.
func NewClient(auth Auth, doer fetch.Doer, apiURL string, opts ...Option) (*Client, error) {
	headers, err := auth.headers()
	if err != nil {
		return nil, err
	}
	if doer == nil {
		return nil, errors.New("cloudflare: nil doer")
	}
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if _, err := url.Parse(apiURL); err != nil {
		return nil, fmt.Errorf("cloudflare: parse api url: %w", err)
	}
	c := &Client{doer: doer, apiURL: strings.TrimRight(apiURL, "/") + "/", auth: headers}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type metadata struct {
	MainModule        string           `json:"main_module"`
	Bindings          []script.Binding `json:"bindings,omitempty"`
	CompatibilityDate string           `json:"compatibility_date,omitempty"`
}

type apiMessage struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type apiResponse struct {
	Success bool         `json:"success"`
	Errors  []apiMessage `json:"errors"`
}

// UploadScript installs s under accountID, replacing any previous version.
func (c *Client) UploadScript(ctx context.Context, accountID string, s script.Script) error {
	if accountID == "" {
		return errors.New("cloudflare: account id is required")
	}
	if s.Name == "" {
		return errors.New("cloudflare: script name is required")
	}
	body, contentType, err := c.encode(s)
	if err != nil {
		return err
	}

	header := c.auth.Clone()
	header.Set("Content-Type", contentType)
	endpoint := c.apiURL + "accounts/" + url.PathEscape(accountID) + "/workers/scripts/" + url.PathEscape(s.Name)
	resp, err := c.doer.Do(ctx, fetch.Request{Method: http.MethodPut, URL: endpoint, Header: header, Body: body})
	if err != nil {
		return fmt.Errorf("upload script %s: %w", s.Name, err)
	}

	var decoded apiResponse
	decodeErr := json.Unmarshal(resp.Body, &decoded)
	if !resp.OK() {
		return fmt.Errorf("upload script %s: %w", s.Name, multierr.Append(fetch.NewStatusError(resp), apiErrors(decoded.Errors)))
	}
	if decodeErr == nil && !decoded.Success {
		if err := apiErrors(decoded.Errors); err != nil {
			return fmt.Errorf("upload script %s: %w", s.Name, err)
		}
		return fmt.Errorf("upload script %s: api reported failure", s.Name)
	}
	return nil
}

func apiErrors(msgs []apiMessage) error {
	var err error
	for _, m := range msgs {
		err = multierr.Append(err, fmt.Errorf("cloudflare error %d: %s", m.Code, m.Message))
	}
	return err
}

func (c *Client) encode(s script.Script) ([]byte, string, error) {
	meta, err := json.Marshal(metadata{
		MainModule:        mainModule,
		Bindings:          s.Bindings,
		CompatibilityDate: c.compatibilityDate,
	})
	if err != nil {
		return nil, "", fmt.Errorf("encode metadata: %w", err)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part := textproto.MIMEHeader{}
	part.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, mainModule, mainModule))
	part.Set("Content-Type", "application/javascript+module")
	fw, err := w.CreatePart(part)
	if err != nil {
		return nil, "", fmt.Errorf("create script part: %w", err)
	}
	if _, err := fw.Write([]byte(s.Source)); err != nil {
		return nil, "", fmt.Errorf("write script part: %w", err)
	}
	if err := w.WriteField("metadata", string(meta)); err != nil {
		return nil, "", fmt.Errorf("write metadata part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart body: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
