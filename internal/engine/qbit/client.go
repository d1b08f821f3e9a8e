// Package qbit provides a client for the qBittorrent Web API.
// It handles authentication, torrent management (add, pause, resume, delete,
// file priorities) and status monitoring, and adapts qBittorrent to engine.Engine.
package qbit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/litescript/ls-torrent-deck/internal/engine"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Client interfaces with qBittorrent Web API
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	limiter    *rate.Limiter
	fetcher    *engine.Fetcher
	log        *logrus.Entry

	mu       sync.Mutex
	loggedIn bool

	// pollInterval paces metadata and file-list polling.
	pollInterval time.Duration
}

// Options configures a Client.
type Options struct {
	Host              string
	Port              int
	Username          string
	Password          string
	RequestsPerSecond float64
	Logger            *logrus.Entry
}

// TorrentInfo represents a torrent in qBittorrent
type TorrentInfo struct {
	Hash        string  `json:"hash"`
	Name        string  `json:"name"`
	Size        int64   `json:"size"`
	Progress    float64 `json:"progress"`
	DLSpeed     int64   `json:"dlspeed"`
	UPSpeed     int64   `json:"upspeed"`
	State       string  `json:"state"`
	SavePath    string  `json:"save_path"`
	ContentPath string  `json:"content_path"`
	Tags        string  `json:"tags"`
	AddedOn     int64   `json:"added_on"`
}

// FileInfo is one entry of /torrents/files
type FileInfo struct {
	Index    int     `json:"index"`
	Name     string  `json:"name"`
	Size     int64   `json:"size"`
	Progress float64 `json:"progress"`
	Priority int     `json:"priority"`
}

// NewClient creates a new qBittorrent API client
func NewClient(opts Options) *Client {
	jar, _ := cookiejar.New(nil)

	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	log := opts.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Client{
		baseURL:  fmt.Sprintf("http://%s:%d", opts.Host, opts.Port),
		username: opts.Username,
		password: opts.Password,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Jar:     jar,
		},
		limiter:      rate.NewLimiter(rate.Limit(rps), 5),
		fetcher:      engine.NewFetcher(),
		log:          log.WithField("component", "qbit"),
		pollInterval: 500 * time.Millisecond,
	}
}

// Login authenticates with the qBittorrent API
func (c *Client) Login(ctx context.Context) error {
	data := url.Values{}
	data.Set("username", c.username)
	data.Set("password", c.password)

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/v2/auth/login", strings.NewReader(data.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", c.baseURL)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: failed to connect to qBittorrent: %v", engine.ErrUnreachable, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if strings.TrimSpace(string(body)) != "Ok." {
		return fmt.Errorf("login failed: %s", strings.TrimSpace(string(body)))
	}

	c.setLoggedIn(true)
	return nil
}

func (c *Client) isLoggedIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loggedIn
}

func (c *Client) setLoggedIn(v bool) {
	c.mu.Lock()
	c.loggedIn = v
	c.mu.Unlock()
}

// GetVersion returns the qBittorrent version
func (c *Client) GetVersion(ctx context.Context) (string, error) {
	resp, err := c.do(ctx, "GET", "/api/v2/app/version", nil, "")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("version check failed: HTTP %d %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return strings.TrimSpace(string(body)), nil
}

// Connect creates a client and checks that the Web API answers with the
// configured credentials. A server that cannot be reached fails with
// engine.ErrUnreachable.
func Connect(ctx context.Context, opts Options) (*Client, error) {
	c := NewClient(opts)
	v, err := c.GetVersion(ctx)
	if err != nil {
		if ctx.Err() != nil && !errors.Is(err, engine.ErrUnreachable) {
			err = fmt.Errorf("%w: %v", engine.ErrUnreachable, err)
		}
		return nil, fmt.Errorf("connecting to qBittorrent at %s: %w", c.baseURL, err)
	}
	c.log.WithField("version", v).Info("connected to qBittorrent")
	return c, nil
}

// do sends an authenticated request, logging in first and once more on 403.
func (c *Client) do(ctx context.Context, method, path string, body []byte, contentType string) (*http.Response, error) {
	if !c.isLoggedIn() {
		if err := c.Login(ctx); err != nil {
			return nil, err
		}
	}

	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		req.Header.Set("Referer", c.baseURL)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %v", engine.ErrUnreachable, err)
		}

		// Session cookie expired
		if resp.StatusCode == http.StatusForbidden && attempt == 0 {
			resp.Body.Close()
			c.setLoggedIn(false)
			if err := c.Login(ctx); err != nil {
				return nil, err
			}
			continue
		}
		return resp, nil
	}
}

func (c *Client) postForm(ctx context.Context, path string, data url.Values) (*http.Response, error) {
	return c.do(ctx, "POST", path, []byte(data.Encode()), "application/x-www-form-urlencoded")
}

// expectOK drains and closes resp, turning non-200 replies into errors.
func expectOK(resp *http.Response, what string) error {
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w", what, engine.ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s failed: HTTP %d %s", what, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// addParams holds the fields of /torrents/add we use.
type addParams struct {
	magnet      string
	torrentFile []byte
	savePath    string
	tags        string
	stopped     bool

	// stopCondition "MetadataReceived" lets a magnet fetch its info and then stop
	stopCondition string
}

// add posts a torrent. qBittorrent answers "Fails." when the hash already exists.
func (c *Client) add(ctx context.Context, p addParams) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if p.magnet != "" {
		_ = writer.WriteField("urls", p.magnet)
	}
	if len(p.torrentFile) > 0 {
		part, err := writer.CreateFormFile("torrents", "source.torrent")
		if err != nil {
			return err
		}
		if _, err := part.Write(p.torrentFile); err != nil {
			return err
		}
	}
	if p.savePath != "" {
		_ = writer.WriteField("savepath", p.savePath)
		_ = writer.WriteField("autoTMM", "false")
	}
	if p.tags != "" {
		_ = writer.WriteField("tags", p.tags)
	}
	// Files land directly in the job folder the caller created
	_ = writer.WriteField("contentLayout", "NoSubfolder")
	if p.stopCondition != "" {
		_ = writer.WriteField("stopCondition", p.stopCondition)
	}
	if p.stopped {
		// "paused" for qBittorrent 4.x, "stopped" for 5.x
		_ = writer.WriteField("paused", "true")
		_ = writer.WriteField("stopped", "true")
	}
	writer.Close()

	resp, err := c.do(ctx, "POST", "/api/v2/torrents/add", body.Bytes(), writer.FormDataContentType())
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	reply := strings.TrimSpace(string(respBody))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to add torrent: HTTP %d %s", resp.StatusCode, reply)
	}
	if reply == "Fails." {
		return fmt.Errorf("failed to add torrent: qBittorrent rejected it")
	}
	return nil
}

// GetTorrents returns the list of torrents, optionally restricted to hashes
func (c *Client) GetTorrents(ctx context.Context, hashes ...string) ([]TorrentInfo, error) {
	path := "/api/v2/torrents/info"
	if len(hashes) > 0 {
		path += "?hashes=" + url.QueryEscape(strings.Join(hashes, "|"))
	}

	resp, err := c.do(ctx, "GET", path, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("listing torrents: HTTP %d", resp.StatusCode)
	}

	var torrents []TorrentInfo
	if err := json.NewDecoder(resp.Body).Decode(&torrents); err != nil {
		return nil, err
	}

	return torrents, nil
}

// GetFiles returns the file list of a torrent. It is empty until metadata arrives.
func (c *Client) GetFiles(ctx context.Context, hash string) ([]FileInfo, error) {
	resp, err := c.do(ctx, "GET", "/api/v2/torrents/files?hash="+url.QueryEscape(hash), nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, engine.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("listing files: HTTP %d", resp.StatusCode)
	}

	var files []FileInfo
	if err := json.NewDecoder(resp.Body).Decode(&files); err != nil {
		return nil, err
	}
	return files, nil
}

// SetFilePriority sets the priority of the given file indices (0 = skip).
func (c *Client) SetFilePriority(ctx context.Context, hash string, indices []int, priority int) error {
	if len(indices) == 0 {
		return nil
	}
	ids := make([]string, len(indices))
	for i, idx := range indices {
		ids[i] = strconv.Itoa(idx)
	}

	data := url.Values{}
	data.Set("hash", hash)
	data.Set("id", strings.Join(ids, "|"))
	data.Set("priority", strconv.Itoa(priority))

	resp, err := c.postForm(ctx, "/api/v2/torrents/filePrio", data)
	if err != nil {
		return err
	}
	return expectOK(resp, "setting file priority")
}

// Pause pauses a torrent
func (c *Client) Pause(ctx context.Context, id engine.ID) error {
	return c.torrentAction(ctx, "pause", "stop", string(id))
}

// Resume resumes a torrent
func (c *Client) Resume(ctx context.Context, id engine.ID) error {
	return c.torrentAction(ctx, "resume", "start", string(id))
}

// Delete removes a torrent together with its downloaded data
func (c *Client) Delete(ctx context.Context, id engine.ID) error {
	return c.Remove(ctx, string(id), true)
}

// Close ends the Web API session
func (c *Client) Close() error {
	if !c.isLoggedIn() {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := c.postForm(ctx, "/api/v2/auth/logout", url.Values{})
	if err != nil {
		return err
	}
	resp.Body.Close()
	c.setLoggedIn(false)
	return nil
}

// Remove deletes a torrent (optionally with files)
func (c *Client) Remove(ctx context.Context, hash string, deleteFiles bool) error {
	data := url.Values{}
	data.Set("hashes", hash)
	data.Set("deleteFiles", strconv.FormatBool(deleteFiles))

	resp, err := c.postForm(ctx, "/api/v2/torrents/delete", data)
	if err != nil {
		return err
	}
	return expectOK(resp, "delete")
}

// torrentAction calls action, falling back to the qBittorrent 5 endpoint name.
func (c *Client) torrentAction(ctx context.Context, action, v5Action, hash string) error {
	data := url.Values{}
	data.Set("hashes", hash)

	resp, err := c.postForm(ctx, "/api/v2/torrents/"+action, data)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		resp, err = c.postForm(ctx, "/api/v2/torrents/"+v5Action, data)
		if err != nil {
			return err
		}
	}
	return expectOK(resp, action)
}
