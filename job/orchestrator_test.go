package job

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"audiograb/media"
	"audiograb/settings"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockFetcher is a mock implementation of the media.Fetcher interface.
type mockFetcher struct {
	resolveFunc func(ctx context.Context, url, destDir string) (*media.Result, error)
}

func (m *mockFetcher) Resolve(ctx context.Context, url, destDir string) (*media.Result, error) {
	return m.resolveFunc(ctx, url, destDir)
}

// mockConverter is a mock implementation of the transcode.Converter interface.
type mockConverter struct {
	convertFunc func(ctx context.Context, rawPath string, format settings.Format) (string, error)
}

func (m *mockConverter) Convert(ctx context.Context, rawPath string, format settings.Format) (string, error) {
	return m.convertFunc(ctx, rawPath, format)
}

// workingConverter writes a fake audio file next to the raw one, like the
// real adapter does.
func workingConverter() *mockConverter {
	return &mockConverter{convertFunc: func(_ context.Context, rawPath string, format settings.Format) (string, error) {
		out := strings.TrimSuffix(rawPath, filepath.Ext(rawPath)) + "." + format.Ext()
		if err := os.WriteFile(out, []byte("audio"), 0o644); err != nil {
			return "", err
		}
		return out, nil
	}}
}

// resolveItems materializes raw files in destDir, one per title, the way the
// fetch provider would.
func resolveItems(t *testing.T, destDir, collectionTitle string, titles ...string) *media.Result {
	t.Helper()
	res := &media.Result{Title: collectionTitle}
	for _, title := range titles {
		path := filepath.Join(destDir, title+".webm")
		require.NoError(t, os.WriteFile(path, []byte("raw"), 0o644))
		res.Items = append(res.Items, media.Item{RawPath: path, Title: title})
	}
	return res
}

func newTestOrchestrator(t *testing.T, f media.Fetcher, c *mockConverter) (*Orchestrator, string, *settings.Store) {
	t.Helper()
	dir := t.TempDir()
	store := settings.NewStore(filepath.Join(dir, "settings.json"))
	outputDir := filepath.Join(dir, "downloads")
	require.NoError(t, os.MkdirAll(outputDir, 0o755))
	return NewOrchestrator(store, f, c, outputDir), outputDir, store
}

// remainingEntries lists outputDir's contents, which after Submit must be
// artifacts only: working directories are always cleaned up.
func remainingEntries(t *testing.T, outputDir string) []string {
	t.Helper()
	entries, err := os.ReadDir(outputDir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestSubmit_SingleItem(t *testing.T) {
	fetcher := &mockFetcher{resolveFunc: func(_ context.Context, url, destDir string) (*media.Result, error) {
		return resolveItems(t, destDir, "My Song", "My Song"), nil
	}}
	orc, outputDir, _ := newTestOrchestrator(t, fetcher, workingConverter())

	res := orc.Submit(context.Background(), []string{"https://example.com/v/1"}, "MP3")

	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, "My Song.mp3", res.File)
	assert.Equal(t, "My Song", res.Title)
	assert.False(t, res.IsPlaylist)
	assert.Empty(t, res.Message)

	assert.Equal(t, []string{"My Song.mp3"}, remainingEntries(t, outputDir))
}

func TestSubmit_SanitizesArtifactName(t *testing.T) {
	fetcher := &mockFetcher{resolveFunc: func(_ context.Context, url, destDir string) (*media.Result, error) {
		// Raw file name on disk is already provider-sanitized; the title is not.
		path := filepath.Join(destDir, "raw.webm")
		require.NoError(t, os.WriteFile(path, []byte("raw"), 0o644))
		return &media.Result{
			Title: `Bad<Title>?`,
			Items: []media.Item{{RawPath: path, Title: `Bad<Title>?`}},
		}, nil
	}}
	orc, outputDir, _ := newTestOrchestrator(t, fetcher, workingConverter())

	res := orc.Submit(context.Background(), []string{"u1"}, "ogg")

	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, "BadTitle.ogg", res.File)
	assert.Equal(t, []string{"BadTitle.ogg"}, remainingEntries(t, outputDir))
}

func TestSubmit_Playlist(t *testing.T) {
	fetcher := &mockFetcher{resolveFunc: func(_ context.Context, url, destDir string) (*media.Result, error) {
		return resolveItems(t, destDir, "Road Trip Mix", "One", "Two", "Three"), nil
	}}
	orc, outputDir, _ := newTestOrchestrator(t, fetcher, workingConverter())

	res := orc.Submit(context.Background(), []string{"https://example.com/playlist"}, "MP3")

	require.Equal(t, StatusOK, res.Status)
	assert.Equal(t, "Road Trip Mix.zip", res.File)
	assert.Equal(t, "Road Trip Mix", res.Title)
	assert.True(t, res.IsPlaylist)

	zr, err := zip.OpenReader(filepath.Join(outputDir, res.File))
	require.NoError(t, err)
	defer zr.Close()

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	assert.Equal(t, []string{"One.mp3", "Three.mp3", "Two.mp3"}, names)

	assert.Equal(t, []string{"Road Trip Mix.zip"}, remainingEntries(t, outputDir))
}

func TestSubmit_PartialFailureKeepsSiblings(t *testing.T) {
	fetcher := &mockFetcher{resolveFunc: func(_ context.Context, url, destDir string) (*media.Result, error) {
		return resolveItems(t, destDir, "Mix", "One", "Two", "Three"), nil
	}}
	conv := &mockConverter{convertFunc: func(_ context.Context, rawPath string, format settings.Format) (string, error) {
		if strings.Contains(rawPath, "Two") {
			return "", errors.New("codec exploded")
		}
		out := strings.TrimSuffix(rawPath, filepath.Ext(rawPath)) + "." + format.Ext()
		return out, os.WriteFile(out, []byte("audio"), 0o644)
	}}
	orc, outputDir, _ := newTestOrchestrator(t, fetcher, conv)

	res := orc.Submit(context.Background(), []string{"u1"}, "MP3")

	require.Equal(t, StatusOK, res.Status)
	assert.True(t, res.IsPlaylist)

	zr, err := zip.OpenReader(filepath.Join(outputDir, res.File))
	require.NoError(t, err)
	defer zr.Close()
	require.Len(t, zr.File, 2)
}

func TestSubmit_SecondURLFailureDoesNotAbort(t *testing.T) {
	fetcher := &mockFetcher{resolveFunc: func(_ context.Context, url, destDir string) (*media.Result, error) {
		if url == "bad" {
			return nil, &media.FetchError{URL: url, Err: errors.New("geo blocked")}
		}
		return resolveItems(t, destDir, "Solo", "Solo"), nil
	}}
	orc, _, _ := newTestOrchestrator(t, fetcher, workingConverter())

	res := orc.Submit(context.Background(), []string{"bad", "good"}, "MP3")

	// One resolved item total, so the artifact is a plain file.
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, "Solo.mp3", res.File)
	assert.False(t, res.IsPlaylist)
}

func TestSubmit_SoleURLFetchFailure(t *testing.T) {
	fetcher := &mockFetcher{resolveFunc: func(_ context.Context, url, destDir string) (*media.Result, error) {
		return nil, &media.FetchError{URL: url, Err: errors.New("video unavailable")}
	}}
	orc, outputDir, _ := newTestOrchestrator(t, fetcher, workingConverter())

	res := orc.Submit(context.Background(), []string{"https://example.com/gone"}, "MP3")

	assert.Equal(t, StatusError, res.Status)
	assert.NotEmpty(t, res.Message)
	assert.Contains(t, res.Message, "video unavailable")
	assert.Empty(t, res.File)

	assert.Empty(t, remainingEntries(t, outputDir))
}

func TestSubmit_AllTranscodesFail(t *testing.T) {
	fetcher := &mockFetcher{resolveFunc: func(_ context.Context, url, destDir string) (*media.Result, error) {
		return resolveItems(t, destDir, "Mix", "One", "Two"), nil
	}}
	conv := &mockConverter{convertFunc: func(_ context.Context, rawPath string, _ settings.Format) (string, error) {
		return "", errors.New("boom")
	}}
	orc, outputDir, _ := newTestOrchestrator(t, fetcher, conv)

	res := orc.Submit(context.Background(), []string{"u1"}, "MP3")

	assert.Equal(t, StatusError, res.Status)
	assert.Contains(t, res.Message, "One")
	assert.Contains(t, res.Message, "Two")
	assert.Empty(t, remainingEntries(t, outputDir))
}

func TestSubmit_PanicInOneItemIsIsolated(t *testing.T) {
	fetcher := &mockFetcher{resolveFunc: func(_ context.Context, url, destDir string) (*media.Result, error) {
		return resolveItems(t, destDir, "Mix", "One", "Two"), nil
	}}
	conv := &mockConverter{convertFunc: func(_ context.Context, rawPath string, format settings.Format) (string, error) {
		// Match on the base name only: t.TempDir() embeds the test name,
		// which itself contains "One", in every rawPath.
		if strings.Contains(filepath.Base(rawPath), "One") {
			panic("converter bug")
		}
		out := strings.TrimSuffix(rawPath, filepath.Ext(rawPath)) + "." + format.Ext()
		return out, os.WriteFile(out, []byte("audio"), 0o644)
	}}
	orc, _, _ := newTestOrchestrator(t, fetcher, conv)

	res := orc.Submit(context.Background(), []string{"u1"}, "MP3")

	require.Equal(t, StatusOK, res.Status)
	assert.True(t, res.IsPlaylist)
}

func TestSubmit_EmptyURLs(t *testing.T) {
	orc, _, _ := newTestOrchestrator(t, &mockFetcher{}, workingConverter())

	for _, urls := range [][]string{nil, {}, {"", "   "}} {
		res := orc.Submit(context.Background(), urls, "MP3")
		assert.Equal(t, StatusError, res.Status)
		assert.NotEmpty(t, res.Message)
	}
}

func TestSubmit_UnknownFormatFallsBack(t *testing.T) {
	fetcher := &mockFetcher{resolveFunc: func(_ context.Context, url, destDir string) (*media.Result, error) {
		return resolveItems(t, destDir, "Song", "Song"), nil
	}}
	orc, _, store := newTestOrchestrator(t, fetcher, workingConverter())

	st := settings.Defaults()
	st.Format = settings.FormatFLAC
	require.NoError(t, store.Save(st))

	res := orc.Submit(context.Background(), []string{"u1"}, "definitely-not-a-format")

	require.Equal(t, StatusOK, res.Status)
	assert.Equal(t, "Song.flac", res.File)
}

func TestSubmit_PersistsLastUsedFormat(t *testing.T) {
	fetcher := &mockFetcher{resolveFunc: func(_ context.Context, url, destDir string) (*media.Result, error) {
		return resolveItems(t, destDir, "Song", "Song"), nil
	}}
	orc, _, store := newTestOrchestrator(t, fetcher, workingConverter())

	res := orc.Submit(context.Background(), []string{"u1"}, "wav")
	require.Equal(t, StatusOK, res.Status)

	assert.Equal(t, settings.FormatWAV, store.Load().Format)
}

func TestTranscodeItem_RemovesRawFile(t *testing.T) {
	orc, _, _ := newTestOrchestrator(t, &mockFetcher{}, workingConverter())

	dir := t.TempDir()
	raw := filepath.Join(dir, "Song.webm")
	require.NoError(t, os.WriteFile(raw, []byte("raw"), 0o644))

	it := &ResolvedItem{SourceURL: "u1", Title: "Song", RawPath: raw, State: StateFetched}
	orc.transcodeItem(context.Background(), &Submission{ID: "s1", Format: settings.FormatMP3}, it)

	assert.Equal(t, StateTranscoded, it.State)
	assert.NoFileExists(t, raw)
	assert.FileExists(t, it.FinalPath)
}

func TestSubmit_ConcurrentSubmissionsIsolated(t *testing.T) {
	fetcher := &mockFetcher{resolveFunc: func(_ context.Context, url, destDir string) (*media.Result, error) {
		return resolveItems(t, destDir, url, url), nil
	}}
	orc, outputDir, _ := newTestOrchestrator(t, fetcher, workingConverter())

	results := make([]Result, 2)
	done := make(chan int, 2)
	for i, url := range []string{"Alpha", "Beta"} {
		go func(i int, url string) {
			results[i] = orc.Submit(context.Background(), []string{url}, "MP3")
			done <- i
		}(i, url)
	}
	<-done
	<-done

	assert.Equal(t, StatusOK, results[0].Status)
	assert.Equal(t, StatusOK, results[1].Status)
	assert.Equal(t, []string{"Alpha.mp3", "Beta.mp3"}, remainingEntries(t, outputDir))
}
