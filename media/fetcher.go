package media

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"audiograb/config"
)

// Item is one raw media file produced by the fetch provider.
type Item struct {
	RawPath string
	Title   string
}

// Result is the outcome of resolving a single source URL. A plain media URL
// yields one item, a playlist yields many. Title is the collection title when
// the provider reports one, otherwise the first item's title.
type Result struct {
	Title string
	Items []Item
}

// Fetcher resolves a source URL into raw on-disk media files.
type Fetcher interface {
	Resolve(ctx context.Context, url, destDir string) (*Result, error)
}

// FetchError wraps any provider failure for one URL: network errors,
// availability blocks, unsupported URLs.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch failed for %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// YTDLP shells out to a yt-dlp compatible binary. The provider decides at
// call time whether a URL is a single item or a playlist; we learn the answer
// from the per-entry JSON it emits.
type YTDLP struct {
	bin       string
	timeout   time.Duration
	extraArgs []string
}

func NewYTDLP(cfg *config.Config) (*YTDLP, error) {
	extra, err := config.SplitExtraArgs(cfg.FetchExtraArgs)
	if err != nil {
		return nil, fmt.Errorf("invalid fetch extra args: %w", err)
	}
	return &YTDLP{
		bin:       cfg.FetchBin,
		timeout:   cfg.FetchTimeout,
		extraArgs: extra,
	}, nil
}

func (y *YTDLP) Resolve(ctx context.Context, url, destDir string) (*Result, error) {
	if y.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, y.timeout)
		defer cancel()
	}

	args := y.buildArgs(url, destDir)
	cmd := exec.CommandContext(ctx, y.bin, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Printf("Resolving %s via %s", url, y.bin)
	runErr := cmd.Run()

	result := parseEntries(stdout.Bytes())
	if len(result.Items) == 0 {
		cause := runErr
		if cause == nil {
			cause = fmt.Errorf("no downloadable media found")
		}
		if msg := providerError(stderr.String()); msg != "" {
			cause = fmt.Errorf("%s", msg)
		}
		return nil, &FetchError{URL: url, Err: cause}
	}

	// A nonzero exit with items already on disk means some playlist entries
	// failed; the ones we have are still usable.
	if runErr != nil {
		log.Printf("Partial fetch for %s: %v", url, runErr)
	}
	return result, nil
}

func (y *YTDLP) buildArgs(url, destDir string) []string {
	args := []string{
		"--no-warnings",
		"--ignore-errors",
		"-f", "bestaudio/best",
		"-o", filepath.Join(destDir, "%(title)s.%(ext)s"),
		"--dump-json",
		"--no-simulate",
	}
	args = append(args, y.extraArgs...)
	return append(args, url)
}

// entry mirrors the fields we need from yt-dlp's per-entry JSON. The on-disk
// path has moved between "filename" and "_filename" across versions, so both
// are accepted.
type entry struct {
	Title         string `json:"title"`
	Filename      string `json:"filename"`
	AltFilename   string `json:"_filename"`
	PlaylistTitle string `json:"playlist_title"`
}

// parseEntries reads one JSON object per line, skipping anything that does
// not parse. Lines the provider interleaves with diagnostics are ignored.
func parseEntries(out []byte) *Result {
	res := &Result{}
	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var e entry
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		path := e.Filename
		if path == "" {
			path = e.AltFilename
		}
		if path == "" {
			continue
		}
		res.Items = append(res.Items, Item{RawPath: path, Title: e.Title})
		if res.Title == "" {
			if e.PlaylistTitle != "" {
				res.Title = e.PlaylistTitle
			} else {
				res.Title = e.Title
			}
		}
	}
	return res
}

// providerError extracts the most useful line from the provider's stderr,
// preferring its explicit ERROR lines over trailing noise.
func providerError(stderr string) string {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	var last string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "ERROR:") {
			last = strings.TrimSpace(strings.TrimPrefix(line, "ERROR:"))
		} else if last == "" {
			last = line
		}
	}
	return last
}
