package job

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"audiograb/media"
	"audiograb/settings"
	"audiograb/transcode"

	"github.com/lithammer/shortuuid/v4"
)

// Orchestrator drives the fetch-then-transcode pipeline for one submission
// at a time per call. Submit may be invoked concurrently for independent
// requests; the settings store is the only shared state.
type Orchestrator struct {
	store     *settings.Store
	fetcher   media.Fetcher
	converter transcode.Converter
	outputDir string
}

func NewOrchestrator(store *settings.Store, fetcher media.Fetcher, converter transcode.Converter, outputDir string) *Orchestrator {
	return &Orchestrator{
		store:     store,
		fetcher:   fetcher,
		converter: converter,
		outputDir: outputDir,
	}
}

// Submit converts the given URLs into a single artifact: the transcoded file
// itself when the URLs resolve to one item, a zip of the successes when they
// resolve to several. Failed items never abort their siblings; the submission
// only fails when nothing could be produced.
func (o *Orchestrator) Submit(ctx context.Context, urls []string, format string) Result {
	cleaned := trimURLs(urls)
	if len(cleaned) == 0 {
		verr := &ValidationError{Reason: "no URLs provided"}
		return Result{Status: StatusError, Message: verr.Error()}
	}

	st := o.store.Load()
	target, ok := settings.ParseFormat(format)
	if !ok {
		// Unknown or absent format falls back to the last-used one.
		target = st.Format
	}

	sub := &Submission{
		ID:        shortuuid.New(),
		URLs:      cleaned,
		Format:    target,
		CreatedAt: time.Now(),
	}
	sub.WorkDir = filepath.Join(o.outputDir, sub.ID)
	if err := os.MkdirAll(sub.WorkDir, 0o755); err != nil {
		return Result{Status: StatusError, Message: fmt.Sprintf("could not create working directory: %v", err)}
	}
	// The working directory goes away in every terminal case.
	defer os.RemoveAll(sub.WorkDir)

	log.Printf("Submission %s: %d URL(s), format %s", sub.ID, len(cleaned), target)

	items, collectionTitle, failures := o.fetchAll(ctx, sub)
	o.transcodeAll(ctx, sub, items, st.Threads)

	res := o.aggregate(sub, items, collectionTitle, failures)

	if res.Status == StatusOK {
		st.Format = target
		if err := o.store.Save(st); err != nil {
			// Best effort only; a persistence failure never demotes the job.
			log.Printf("Submission %s: %v", sub.ID, err)
		}
	}
	return res
}

// fetchAll resolves every URL in order. A failed URL annotates the failure
// list and processing moves on to the next one.
func (o *Orchestrator) fetchAll(ctx context.Context, sub *Submission) (items []*ResolvedItem, collectionTitle string, failures []string) {
	for _, url := range sub.URLs {
		res, err := o.fetcher.Resolve(ctx, url, sub.WorkDir)
		if err != nil {
			log.Printf("Submission %s: %v", sub.ID, err)
			failures = append(failures, err.Error())
			continue
		}
		if collectionTitle == "" {
			collectionTitle = res.Title
		}
		for _, it := range res.Items {
			items = append(items, &ResolvedItem{
				SourceURL: url,
				Title:     it.Title,
				RawPath:   it.RawPath,
				State:     StateFetched,
			})
		}
	}
	return items, collectionTitle, failures
}

// transcodeAll converts the fetched items, at most threads at a time. Each
// goroutine owns exactly one item slot, so a failure or panic in one item
// cannot corrupt another's result.
func (o *Orchestrator) transcodeAll(ctx context.Context, sub *Submission, items []*ResolvedItem, threads int) {
	if threads < 1 {
		threads = 1
	}
	sem := make(chan struct{}, threads)
	var wg sync.WaitGroup

	for _, item := range items {
		wg.Add(1)
		sem <- struct{}{}
		go func(it *ResolvedItem) {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					it.State = StateFailed
					it.FailReason = fmt.Sprintf("internal error: %v", r)
				}
			}()
			o.transcodeItem(ctx, sub, it)
		}(item)
	}
	wg.Wait()
}

func (o *Orchestrator) transcodeItem(ctx context.Context, sub *Submission, it *ResolvedItem) {
	final, err := o.converter.Convert(ctx, it.RawPath, sub.Format)
	if err != nil {
		it.State = StateFailed
		it.FailReason = err.Error()
		return
	}

	// The raw intermediate is the orchestrator's to delete, not the adapter's.
	if err := os.Remove(it.RawPath); err != nil {
		log.Printf("Submission %s: could not remove raw file %s: %v", sub.ID, it.RawPath, err)
	}

	it.FinalPath = final
	it.State = StateTranscoded
}

// aggregate packages the per-item outcomes into the submission's single
// artifact and result. The artifact exists on disk before the result is
// returned.
func (o *Orchestrator) aggregate(sub *Submission, items []*ResolvedItem, collectionTitle string, failures []string) Result {
	var done []*ResolvedItem
	for _, it := range items {
		switch it.State {
		case StateTranscoded:
			done = append(done, it)
		case StateFailed:
			failures = append(failures, itemFailure(it))
		}
	}

	if len(done) == 0 {
		msg := strings.Join(failures, "; ")
		if msg == "" {
			msg = "no items could be processed"
		}
		return Result{Status: StatusError, Message: msg}
	}

	// Exactly one resolved item: the artifact is the file itself.
	if len(items) == 1 {
		it := done[0]
		name := SanitizeFilename(it.Title)
		if name == "" {
			name = sub.ID
		}
		artifact := name + "." + sub.Format.Ext()
		if err := os.Rename(it.FinalPath, filepath.Join(o.outputDir, artifact)); err != nil {
			return Result{Status: StatusError, Message: fmt.Sprintf("could not place artifact: %v", err)}
		}
		return Result{Status: StatusOK, File: artifact, Title: it.Title}
	}

	// A collection: bundle the successes, omit the failures.
	title := collectionTitle
	name := SanitizeFilename(title)
	if name == "" {
		name = sub.ID
	}
	if title == "" {
		title = sub.ID
	}
	artifact := name + ".zip"

	paths := make([]string, 0, len(done))
	for _, it := range done {
		paths = append(paths, it.FinalPath)
	}
	if err := writeArchive(filepath.Join(o.outputDir, artifact), paths); err != nil {
		return Result{Status: StatusError, Message: fmt.Sprintf("could not build archive: %v", err)}
	}
	return Result{Status: StatusOK, File: artifact, Title: title, IsPlaylist: true}
}

func itemFailure(it *ResolvedItem) string {
	label := it.Title
	if label == "" {
		label = it.SourceURL
	}
	return fmt.Sprintf("%s: %s", label, it.FailReason)
}

func trimURLs(urls []string) []string {
	cleaned := make([]string, 0, len(urls))
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			cleaned = append(cleaned, u)
		}
	}
	return cleaned
}
