package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"audiograb/config"
	"audiograb/job"

	"github.com/gin-gonic/gin"
)

// Submitter is the orchestrator surface the handlers need.
type Submitter interface {
	Submit(ctx context.Context, urls []string, format string) job.Result
}

type Handler struct {
	submitter Submitter
	cfg       *config.Config
	outputDir string
}

func NewHandler(sub Submitter, cfg *config.Config, outputDir string) *Handler {
	return &Handler{
		submitter: sub,
		cfg:       cfg,
		outputDir: outputDir,
	}
}

// handleDownload accepts one or more source URLs plus an optional format and
// runs the submission to completion. The HTTP status is always 200; callers
// read success or failure from the body's status field.
func (h *Handler) handleDownload(c *gin.Context) {
	urls := splitURLs(c.PostFormArray("url"))
	format := c.PostForm("format")

	// Deliberately not the request context: an accepted submission runs to
	// completion even if the client goes away mid-download.
	res := h.submitter.Submit(context.Background(), urls, format)
	c.JSON(http.StatusOK, res)
}

// splitURLs flattens repeated form values and comma-joined lists into one
// ordered sequence.
func splitURLs(values []string) []string {
	var urls []string
	for _, v := range values {
		for _, u := range strings.Split(v, ",") {
			if u = strings.TrimSpace(u); u != "" {
				urls = append(urls, u)
			}
		}
	}
	return urls
}

// handleGetFile serves a completed artifact by exact name.
func (h *Handler) handleGetFile(c *gin.Context) {
	name := c.Param("filename")

	// No traversal: the artifact namespace is flat.
	if name == "" || name != filepath.Base(name) || strings.Contains(name, "..") {
		h.fileNotFound(c)
		return
	}

	path := filepath.Join(h.outputDir, name)
	f, err := os.Open(path)
	if err != nil {
		h.fileNotFound(c)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		h.fileNotFound(c)
		return
	}

	c.DataFromReader(http.StatusOK, info.Size(), "application/octet-stream", f, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", name),
	})
}

func (h *Handler) fileNotFound(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "error", "message": "File not found"})
}

// handleCommand answers the developer console's fixed commands.
func (h *Handler) handleCommand(c *gin.Context) {
	cmd := strings.ToLower(strings.TrimSpace(c.PostForm("cmd")))

	response, ok := consoleResponses[cmd]
	if !ok {
		response = fmt.Sprintf("Unknown command: %s", cmd)
	}
	c.JSON(http.StatusOK, gin.H{"response": response})
}

var consoleResponses = map[string]string{
	"help":   "Available commands: help, clear, status",
	"status": "Backend online",
	"clear":  "",
}
