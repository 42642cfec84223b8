package fetcher

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	protohttp "github.com/psxtools/psupd/pkg/protocol/http"

	"github.com/psxtools/psupd/internal/logger"
	"github.com/psxtools/psupd/internal/titleid"
	"github.com/psxtools/psupd/internal/utils"
)

// BaseURL is the root of the PS3 update distribution service.
const BaseURL = "https://a0.ww.np.dl.playstation.net"

const defaultTimeout = 20 * time.Second

// Package describes one downloadable update package for a title.
// Entities never mutate after parsing.
type Package struct {
	Version       string `json:"version"`
	SystemVersion string `json:"system_ver"`
	SizeBytes     int64  `json:"size_bytes"`
	SizeHuman     string `json:"size_human"`
	URL           string `json:"url"`
	SHA1          string `json:"sha1"`
	Filename      string `json:"filename"`
}

// Result is the outcome of one FetchUpdates call. An empty Results slice
// with an empty Error means the title exists but has no packages.
type Result struct {
	Results   []Package `json:"results"`
	Error     string    `json:"error,omitempty"`
	GameTitle string    `json:"game_title"`
	TitleID   string    `json:"cleaned_title_id"`
}

// Fetcher queries the vendor metadata endpoint.
type Fetcher struct {
	client  *protohttp.Client
	baseURL string
	timeout time.Duration
}

type Option func(*Fetcher)

// WithBaseURL overrides the metadata endpoint, primarily for tests.
func WithBaseURL(u string) Option {
	return func(f *Fetcher) {
		f.baseURL = strings.TrimRight(u, "/")
	}
}

// WithTimeout bounds each metadata request.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		f.timeout = d
	}
}

func New(client *protohttp.Client, opts ...Option) *Fetcher {
	if client == nil {
		client = protohttp.NewClient(nil)
	}

	f := &Fetcher{
		client:  client,
		baseURL: BaseURL,
		timeout: defaultTimeout,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// CheckServerStatus reports whether the update server is reachable.
// Transport errors never surface; they collapse to false.
func (f *Fetcher) CheckServerStatus(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	if err := f.client.Head(ctx, f.baseURL); err != nil {
		logger.Debugf("Update server unreachable: %v", err)
		return false
	}

	return true
}

// FetchUpdates retrieves and parses the update metadata for a title.
// Fetch-path failures are returned synchronously, never recorded on
// shared state.
func (f *Fetcher) FetchUpdates(ctx context.Context, rawTitleID string) (*Result, error) {
	cleaned, err := titleid.Normalize(rawTitleID)
	if err != nil {
		return nil, err
	}

	logger.Infof("Fetching updates for title %s", cleaned)

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/tpl/np/%s/%s-ver.xml", f.baseURL, cleaned, cleaned)

	resp, err := f.client.Get(ctx, url)
	if err != nil {
		var httpErr *protohttp.HTTPError
		if errors.As(err, &httpErr) && httpErr.Type == protohttp.ErrorTypeHTTP {
			logger.Debugf("Metadata request for %s returned status %d", cleaned, httpErr.Status)
			return nil, fmt.Errorf("%w: %s", ErrNoUpdatesFound, cleaned)
		}
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoUpdatesFound, cleaned)
	}

	return parseResult(body, cleaned)
}

func parseResult(body []byte, cleaned string) (*Result, error) {
	var parsed titlePatch
	if err := xml.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrXMLParse, err)
	}

	gameTitle := extractTitleTag(string(body))

	pkgs := parsed.packages()
	results := make([]Package, 0, len(pkgs))
	for _, p := range pkgs {
		results = append(results, packageFromNode(p))
	}

	// Prefer the title carried in the first package's PARAMSFO.
	if len(pkgs) > 0 {
		if t := pkgs[0].title(); t != "" {
			gameTitle = strings.TrimSpace(t)
		}
	}
	if gameTitle == "" {
		gameTitle = "Unknown Title"
	}

	sortPackages(results)

	logger.Infof("Found %d package(s) for %s (%s)", len(results), cleaned, gameTitle)

	return &Result{
		Results:   results,
		GameTitle: gameTitle,
		TitleID:   cleaned,
	}, nil
}

func packageFromNode(p packageNode) Package {
	url := strings.TrimSpace(p.URL)

	size, _ := strconv.ParseInt(strings.TrimSpace(p.Size), 10, 64)

	version := strings.TrimSpace(p.Version)
	if version == "" {
		version = "Unknown"
	}

	filename := "update.pkg"
	if idx := strings.LastIndex(url, "/"); idx >= 0 && idx < len(url)-1 {
		filename = url[idx+1:]
	}

	return Package{
		Version:       version,
		SystemVersion: strings.TrimSpace(p.SystemVer),
		SizeBytes:     size,
		SizeHuman:     utils.FormatSize(size),
		URL:           url,
		SHA1:          strings.TrimSpace(p.hash()),
		Filename:      filename,
	}
}

// extractTitleTag pulls the game title straight out of the raw XML as a
// fallback for responses whose PARAMSFO block does not decode.
func extractTitleTag(text string) string {
	start := strings.Index(text, "<TITLE>")
	if start < 0 {
		return ""
	}

	rest := text[start+len("<TITLE>"):]
	end := strings.Index(rest, "</TITLE>")
	if end < 0 {
		return ""
	}

	return strings.TrimSpace(rest[:end])
}

// sortPackages orders packages by version, highest first. Versions are
// compared component-wise as numbers ("1.10" above "1.2"); numerically
// equal versions fall back to a plain string comparison so that "1.2"
// still sorts above "1.02".
func sortPackages(pkgs []Package) {
	sort.SliceStable(pkgs, func(i, j int) bool {
		return compareVersions(pkgs[i].Version, pkgs[j].Version) > 0
	})
}

func compareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")

	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}

	for i := 0; i < n; i++ {
		av, bv := 0, 0
		if i < len(as) {
			av = numericPrefix(as[i])
		}
		if i < len(bs) {
			bv = numericPrefix(bs[i])
		}

		if av != bv {
			if av > bv {
				return 1
			}
			return -1
		}
	}

	return strings.Compare(a, b)
}

// numericPrefix parses the leading digits of a version component;
// components with no digits count as zero.
func numericPrefix(s string) int {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}

	if end == 0 {
		return 0
	}

	v, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}

	return v
}
