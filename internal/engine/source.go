package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/anacrolix/torrent/metainfo"
	"github.com/litescript/ls-torrent-deck/internal/version"
)

// SourceKind tells how a user-supplied source is fetched.
type SourceKind int

const (
	SourceMagnet SourceKind = iota
	SourceURL
	SourceFile
)

// Source is a validated magnet link, URL or .torrent path.
type Source struct {
	Kind SourceKind
	// URI is the cleaned magnet or URL. Empty for SourceFile.
	URI string
	// Path is the absolute .torrent path for SourceFile.
	Path string
}

// ParseSource validates the raw text typed or pasted by the user.
func ParseSource(raw string) (Source, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Source{}, ErrInvalidSource
	}

	// Pasted links often carry line breaks or stray whitespace
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return -1
		}
		return r
	}, trimmed)

	lower := strings.ToLower(cleaned)
	switch {
	case strings.HasPrefix(lower, "magnet:"):
		return Source{Kind: SourceMagnet, URI: cleaned}, nil
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return Source{Kind: SourceURL, URI: cleaned}, nil
	}

	path := ExpandHome(trimmed)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return Source{}, ErrInvalidSource
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return Source{}, fmt.Errorf("resolve path: %w", err)
	}
	return Source{Kind: SourceFile, Path: abs}, nil
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// Resolved is a source reduced to either a magnet link or parsed metainfo.
type Resolved struct {
	Magnet   string
	MetaInfo *metainfo.MetaInfo
}

// InfoHash returns the lowercase hex info-hash of the resolved source.
func (r Resolved) InfoHash() (string, error) {
	if r.MetaInfo != nil {
		return r.MetaInfo.HashInfoBytes().HexString(), nil
	}
	m, err := metainfo.ParseMagnetUri(r.Magnet)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}
	return m.InfoHash.HexString(), nil
}

// Fetcher turns sources into magnets or metainfo. URL sources may point at a
// .torrent file or at a web page that links a magnet.
type Fetcher struct {
	client *http.Client
}

// NewFetcher creates a fetcher with a bounded HTTP client.
func NewFetcher() *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// maxTorrentFileSize bounds downloads of .torrent files.
const maxTorrentFileSize = 16 << 20

// Resolve fetches whatever is needed to describe src.
func (f *Fetcher) Resolve(ctx context.Context, src Source) (Resolved, error) {
	switch src.Kind {
	case SourceMagnet:
		if _, err := metainfo.ParseMagnetUri(src.URI); err != nil {
			return Resolved{}, fmt.Errorf("%w: %v", ErrInvalidSource, err)
		}
		return Resolved{Magnet: src.URI}, nil
	case SourceFile:
		mi, err := metainfo.LoadFromFile(src.Path)
		if err != nil {
			return Resolved{}, fmt.Errorf("failed to read .torrent file: %w", err)
		}
		return Resolved{MetaInfo: mi}, nil
	default:
		return f.fetchURL(ctx, src.URI)
	}
}

func (f *Fetcher) fetchURL(ctx context.Context, rawURL string) (Resolved, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return Resolved{}, err
	}
	req.Header.Set("User-Agent", "torrent-deck/"+version.Version)
	req.Header.Set("Accept", "application/x-bittorrent,text/html;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return Resolved{}, fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Resolved{}, fmt.Errorf("HTTP %d for %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTorrentFileSize))
	if err != nil {
		return Resolved{}, fmt.Errorf("reading %s: %w", rawURL, err)
	}

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	if strings.Contains(contentType, "text/html") {
		return magnetFromPage(body, rawURL)
	}

	mi, err := metainfo.Load(bytes.NewReader(body))
	if err != nil {
		// Some trackers serve torrents as text/plain or octet-stream pages
		if res, perr := magnetFromPage(body, rawURL); perr == nil {
			return res, nil
		}
		return Resolved{}, fmt.Errorf("%s is not a torrent file: %w", rawURL, err)
	}
	return Resolved{MetaInfo: mi}, nil
}

// magnetFromPage picks the first magnet link on an HTML page.
func magnetFromPage(body []byte, pageURL string) (Resolved, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Resolved{}, fmt.Errorf("parsing %s: %w", pageURL, err)
	}

	var magnet string
	doc.Find("a[href^='magnet:']").EachWithBreak(func(i int, link *goquery.Selection) bool {
		href, _ := link.Attr("href")
		if _, err := metainfo.ParseMagnetUri(href); err != nil {
			return true
		}
		magnet = href
		return false
	})
	if magnet == "" {
		return Resolved{}, fmt.Errorf("%w: no magnet link found at %s", ErrInvalidSource, pageURL)
	}
	return Resolved{Magnet: magnet}, nil
}

// MetadataFromInfo converts parsed metainfo into a file listing.
func MetadataFromInfo(mi *metainfo.MetaInfo) (Metadata, error) {
	info, err := mi.UnmarshalInfo()
	if err != nil {
		return Metadata{}, fmt.Errorf("decoding torrent info: %w", err)
	}
	files := make([]File, 0, len(info.UpvertedFiles()))
	for _, fi := range info.UpvertedFiles() {
		files = append(files, File{
			Name: fi.DisplayPath(&info),
			Size: fi.Length,
		})
	}
	return Metadata{
		InfoHash: mi.HashInfoBytes().HexString(),
		Name:     info.Name,
		Files:    files,
	}, nil
}

// SelectionSet turns OnlyFiles into a lookup set, rejecting out of range indices.
func SelectionSet(onlyFiles []int, fileCount int) (map[int]bool, error) {
	if len(onlyFiles) == 0 {
		return nil, ErrNoFiles
	}
	set := make(map[int]bool, len(onlyFiles))
	for _, idx := range onlyFiles {
		if idx < 0 || idx >= fileCount {
			return nil, fmt.Errorf("file index %d out of range (%d files)", idx, fileCount)
		}
		set[idx] = true
	}
	return set, nil
}
