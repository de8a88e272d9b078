// Package dav implements the WebDAV client side used to list and fetch
// files from peer shares.
package dav

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/lanshare/lanshare/internal/safety"
)

// ErrUnauthorized is returned when a peer rejects the request with 401.
// Callers use it to decide whether to prompt for credentials.
var ErrUnauthorized = errors.New("peer requires authentication")

// maxListingBody bounds the size of a PROPFIND response we will parse.
const maxListingBody = 16 << 20

// HTTPError describes a non-success response from a peer.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("HTTP %s: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("HTTP %s", e.Status)
}

// ListingError wraps a failure to enumerate a remote directory.
type ListingError struct {
	Path string
	Err  error
}

func (e *ListingError) Error() string {
	return fmt.Sprintf("listing %q: %v", e.Path, e.Err)
}

func (e *ListingError) Unwrap() error { return e.Err }

// Entry is one item of a remote directory listing.
type Entry struct {
	// Path is the share-relative path, always beginning with "/".
	Path        string
	DisplayName string
	Size        int64
	Modified    time.Time
	IsDir       bool
	ContentType string
}

// Client talks WebDAV to a single peer share.
type Client struct {
	baseURL  string
	http     *http.Client
	username string
	password string
	useAuth  bool
}

// NewClient creates a client for the share rooted at baseURL,
// e.g. "http://192.168.1.20:8080".
func NewClient(baseURL string) (*Client, error) {
	if _, err := safety.ValidateHTTPURL(baseURL); err != nil {
		return nil, fmt.Errorf("invalid peer URL: %w", err)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    safety.NewHTTPClient(),
	}, nil
}

// SetBasicAuth attaches credentials to all subsequent requests.
func (c *Client) SetBasicAuth(username, password string) {
	c.username = username
	c.password = password
	c.useAuth = true
}

// List enumerates the immediate children of a remote directory. remotePath
// is share-relative ("/" for the root). The directory's own entry is not
// included in the result.
func (c *Client) List(ctx context.Context, remotePath string) ([]Entry, error) {
	remotePath = normalizePath(remotePath)
	entries, err := c.propfind(ctx, remotePath, "1")
	if err != nil {
		return nil, &ListingError{Path: remotePath, Err: err}
	}

	children := entries[:0]
	for _, e := range entries {
		if e.Path == remotePath {
			continue
		}
		children = append(children, e)
	}
	return children, nil
}

// Stat describes a single remote path without enumerating children.
func (c *Client) Stat(ctx context.Context, remotePath string) (Entry, error) {
	remotePath = normalizePath(remotePath)
	entries, err := c.propfind(ctx, remotePath, "0")
	if err != nil {
		return Entry{}, &ListingError{Path: remotePath, Err: err}
	}
	if len(entries) == 0 {
		return Entry{}, &ListingError{Path: remotePath, Err: errors.New("empty multistatus response")}
	}
	return entries[0], nil
}

// Get opens the body of a remote file. The caller must close the reader.
func (c *Client) Get(ctx context.Context, remotePath string) (io.ReadCloser, int64, error) {
	remotePath = normalizePath(remotePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.urlFor(remotePath), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("creating request: %w", err)
	}
	c.applyAuth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("fetching %q: %w", remotePath, err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		return nil, 0, fmt.Errorf("fetching %q: %w", remotePath, ErrUnauthorized)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := safety.ReadAllWithLimit(resp.Body, 4096)
		resp.Body.Close()
		return nil, 0, fmt.Errorf("fetching %q: %w", remotePath, &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(body)),
		})
	}
	return resp.Body, resp.ContentLength, nil
}

const propfindBody = `<?xml version="1.0" encoding="utf-8"?>
<D:propfind xmlns:D="DAV:">
  <D:prop>
    <D:displayname/>
    <D:getcontentlength/>
    <D:getlastmodified/>
    <D:resourcetype/>
    <D:getcontenttype/>
  </D:prop>
</D:propfind>`

func (c *Client) propfind(ctx context.Context, remotePath, depth string) ([]Entry, error) {
	req, err := http.NewRequestWithContext(ctx, "PROPFIND", c.urlFor(remotePath), strings.NewReader(propfindBody))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Depth", depth)
	req.Header.Set("Content-Type", `application/xml; charset="utf-8"`)
	c.applyAuth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	if resp.StatusCode != http.StatusMultiStatus && resp.StatusCode != http.StatusOK {
		body, _ := safety.ReadAllWithLimit(resp.Body, 4096)
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	raw, err := safety.ReadAllWithLimit(resp.Body, maxListingBody)
	if err != nil {
		return nil, fmt.Errorf("reading multistatus body: %w", err)
	}
	return parseMultistatus(raw)
}

func (c *Client) applyAuth(req *http.Request) {
	if c.useAuth {
		req.SetBasicAuth(c.username, c.password)
	}
}

// urlFor builds the request URL for a share-relative path, escaping each
// segment so names with spaces or reserved characters survive.
func (c *Client) urlFor(remotePath string) string {
	if remotePath == "/" {
		return c.baseURL + "/"
	}
	segs := strings.Split(strings.Trim(remotePath, "/"), "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return c.baseURL + "/" + strings.Join(segs, "/")
}

// multistatus is the subset of the DAV:multistatus schema we consume.
type multistatus struct {
	XMLName   xml.Name   `xml:"DAV: multistatus"`
	Responses []response `xml:"response"`
}

type response struct {
	Href      string     `xml:"href"`
	Propstats []propstat `xml:"propstat"`
}

type propstat struct {
	Status string `xml:"status"`
	Prop   prop   `xml:"prop"`
}

type prop struct {
	DisplayName   string       `xml:"displayname"`
	ContentLength string       `xml:"getcontentlength"`
	LastModified  string       `xml:"getlastmodified"`
	ContentType   string       `xml:"getcontenttype"`
	ResourceType  resourceType `xml:"resourcetype"`
}

type resourceType struct {
	Collection *struct{} `xml:"collection"`
}

func parseMultistatus(raw []byte) ([]Entry, error) {
	var ms multistatus
	if err := xml.Unmarshal(raw, &ms); err != nil {
		return nil, fmt.Errorf("parsing multistatus: %w", err)
	}

	entries := make([]Entry, 0, len(ms.Responses))
	for _, r := range ms.Responses {
		p, ok := okProp(r.Propstats)
		if !ok {
			continue
		}
		rel, err := hrefPath(r.Href)
		if err != nil {
			return nil, err
		}
		e := Entry{
			Path:        rel,
			DisplayName: p.DisplayName,
			IsDir:       p.ResourceType.Collection != nil,
			ContentType: p.ContentType,
		}
		if e.DisplayName == "" {
			e.DisplayName = path.Base(rel)
		}
		if p.ContentLength != "" {
			if n, err := strconv.ParseInt(p.ContentLength, 10, 64); err == nil {
				e.Size = n
			}
		}
		if p.LastModified != "" {
			if t, err := http.ParseTime(p.LastModified); err == nil {
				e.Modified = t
			}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// okProp picks the propstat carrying a 2xx status.
func okProp(stats []propstat) (prop, bool) {
	for _, ps := range stats {
		if strings.Contains(ps.Status, " 200 ") || strings.HasSuffix(ps.Status, " 200 OK") {
			return ps.Prop, true
		}
	}
	if len(stats) == 1 && stats[0].Status == "" {
		return stats[0].Prop, true
	}
	return prop{}, false
}

// hrefPath converts a response href into a normalized share-relative path.
func hrefPath(href string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("parsing href %q: %w", href, err)
	}
	return normalizePath(u.Path), nil
}

// normalizePath cleans a share-relative path: leading slash, no trailing
// slash except for the root itself.
func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	p = path.Clean("/" + strings.Trim(p, "/"))
	return p
}
