package inference

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/antonholmquist/jason"
	"github.com/okian/aquascan/internal/domain/model"
	"github.com/okian/aquascan/pkg/logger"
)

const (
	maxEventLine = 4 << 20
	maxErrorBody = 2048
)

// Client is a connected handle to the remote app. Create it with Connect.
type Client struct {
	http    *http.Client
	log     logger.Logger
	hubURL  string
	repoID  string
	baseURL string
	apiName string
	timeout time.Duration

	host   string
	prefix string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client used for every remote call.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithHubURL sets the hub used to resolve a space repo id to its host.
func WithHubURL(u string) Option {
	return func(c *Client) { c.hubURL = strings.TrimRight(u, "/") }
}

// WithSpaceRepoID sets the "owner/name" identifier of the space.
func WithSpaceRepoID(id string) Option {
	return func(c *Client) { c.repoID = id }
}

// WithSpaceURL points the client directly at an app host, skipping
// hub resolution.
func WithSpaceURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithAPIName sets the named endpoint, e.g. "/predict".
func WithAPIName(name string) Option {
	return func(c *Client) { c.apiName = strings.TrimPrefix(name, "/") }
}

// WithTimeout bounds a single inference. Zero leaves it unbounded.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// Connect resolves the app host and checks that the named endpoint exists.
// Every failure is reported as ErrConnect.
func Connect(ctx context.Context, opts ...Option) (*Client, error) {
	c := &Client{
		http:    http.DefaultClient,
		log:     logger.Nop(),
		hubURL:  "https://huggingface.co",
		apiName: "predict",
	}
	for _, opt := range opts {
		opt(c)
	}

	host, err := c.resolveHost(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}
	c.host = host

	prefix, err := c.loadConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}
	c.prefix = prefix

	c.log.Info(ctx, "connected to inference space",
		logger.String("space", c.Space()),
		logger.String("host", c.host),
		logger.String("endpoint", c.Endpoint()))
	return c, nil
}

// Space returns the configured space identifier or URL.
func (c *Client) Space() string {
	if c.baseURL != "" {
		return c.baseURL
	}
	return c.repoID
}

// Host returns the resolved app host.
func (c *Client) Host() string { return c.host }

// Endpoint returns the named endpoint in "/name" form.
func (c *Client) Endpoint() string { return "/" + c.apiName }

func (c *Client) resolveHost(ctx context.Context) (string, error) {
	if c.baseURL != "" {
		return c.baseURL, nil
	}
	if c.repoID == "" {
		return "", fmt.Errorf("no space configured")
	}

	u := fmt.Sprintf("%s/api/spaces/%s/host", c.hubURL, c.repoID)
	body, err := c.get(ctx, u)
	if err != nil {
		return "", fmt.Errorf("resolve host: %w", err)
	}
	obj, err := jason.NewObjectFromBytes(body)
	if err != nil {
		return "", fmt.Errorf("resolve host: %w", err)
	}
	host, err := obj.GetString("host")
	if err != nil || host == "" {
		return "", fmt.Errorf("resolve host: no host for space %q", c.repoID)
	}
	return strings.TrimRight(host, "/"), nil
}

// loadConfig fetches the app config and returns its API prefix.
func (c *Client) loadConfig(ctx context.Context) (string, error) {
	body, err := c.get(ctx, c.host+"/config")
	if err != nil {
		return "", fmt.Errorf("load config: %w", err)
	}
	obj, err := jason.NewObjectFromBytes(body)
	if err != nil {
		return "", fmt.Errorf("load config: %w", err)
	}

	prefix, _ := obj.GetString("api_prefix")
	prefix = strings.TrimRight(prefix, "/")

	deps, err := obj.GetObjectArray("dependencies")
	if err != nil {
		return "", fmt.Errorf("load config: no dependencies")
	}
	for _, d := range deps {
		name, err := d.GetString("api_name")
		if err == nil && strings.TrimPrefix(name, "/") == c.apiName {
			return prefix, nil
		}
	}
	return "", fmt.Errorf("endpoint %s not exposed by space", c.Endpoint())
}

// Infer uploads the image, calls the endpoint and waits for its result.
// There are no retries.
func (c *Client) Infer(ctx context.Context, img Image) (model.Inference, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	path, err := c.upload(ctx, img)
	if err != nil {
		return model.Inference{}, fmt.Errorf("%w: upload: %w", ErrTransport, err)
	}

	eventID, err := c.call(ctx, path, img.Filename)
	if err != nil {
		return model.Inference{}, fmt.Errorf("%w: call: %w", ErrTransport, err)
	}
	c.log.Debug(ctx, "inference queued", logger.String("event_id", eventID))

	raw, err := c.await(ctx, eventID)
	if err != nil {
		return model.Inference{}, err
	}
	return parseOutput(raw)
}

func (c *Client) apiURL(parts ...string) string {
	return c.host + c.prefix + "/" + strings.Join(parts, "/")
}

func (c *Client) upload(ctx context.Context, img Image) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("files", img.Filename)
	if err != nil {
		return "", err
	}
	if _, err := fw.Write(img.Data); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL("upload"), &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	body, err := c.do(req)
	if err != nil {
		return "", err
	}
	v, err := jason.NewValueFromBytes(body)
	if err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	paths, err := v.Array()
	if err != nil || len(paths) == 0 {
		return "", fmt.Errorf("upload returned no file path")
	}
	p, err := paths[0].String()
	if err != nil || p == "" {
		return "", fmt.Errorf("upload returned no file path")
	}
	return p, nil
}

type fileMeta struct {
	Type string `json:"_type"`
}

type fileData struct {
	Path     string   `json:"path"`
	OrigName string   `json:"orig_name"`
	Meta     fileMeta `json:"meta"`
}

type callRequest struct {
	Data []fileData `json:"data"`
}

func (c *Client) call(ctx context.Context, path, filename string) (string, error) {
	payload, err := json.Marshal(callRequest{Data: []fileData{{
		Path:     path,
		OrigName: filename,
		Meta:     fileMeta{Type: "gradio.FileData"},
	}}})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL("call", c.apiName), bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req)
	if err != nil {
		return "", err
	}
	obj, err := jason.NewObjectFromBytes(body)
	if err != nil {
		return "", fmt.Errorf("decode call response: %w", err)
	}
	id, err := obj.GetString("event_id")
	if err != nil || id == "" {
		return "", fmt.Errorf("call returned no event id")
	}
	return id, nil
}

// await reads the result stream until a terminal event arrives.
func (c *Client) await(ctx context.Context, eventID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL("call", c.apiName, url.PathEscape(eventID)), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: result stream: %w", ErrTransport, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: result stream: %s", ErrTransport, statusError(resp))
	}

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), maxEventLine)

	var event string
	var data []string
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			switch event {
			case "complete":
				return []byte(strings.Join(data, "\n")), nil
			case "error":
				msg := strings.Join(data, "\n")
				if msg == "" || msg == "null" {
					msg = "remote app reported an error"
				}
				return nil, fmt.Errorf("%w: remote: %s", ErrTransport, msg)
			}
			event, data = "", nil
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: result stream: %w", ErrTransport, err)
	}
	// A final event may be missing its trailing blank line.
	switch event {
	case "complete":
		return []byte(strings.Join(data, "\n")), nil
	case "error":
		return nil, fmt.Errorf("%w: remote: %s", ErrTransport, strings.Join(data, "\n"))
	}
	return nil, fmt.Errorf("%w: result stream ended without a result", ErrTransport)
}

func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp)
	}
	return io.ReadAll(resp.Body)
}

func statusError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(b))
	if msg == "" {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return fmt.Errorf("status %d: %s", resp.StatusCode, msg)
}
