package transcode

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"audiograb/config"
	"audiograb/settings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// Converter turns a raw media file into an audio file of the target format.
// Implementations write the output next to the input and leave deletion of
// the raw file to the caller.
type Converter interface {
	Convert(ctx context.Context, rawPath string, format settings.Format) (string, error)
}

// ConvertError wraps any transcode tool failure: nonzero exit, missing
// binary, unreadable input. Output carries the tool's diagnostic text.
type ConvertError struct {
	RawPath string
	Output  string
	Err     error
}

func (e *ConvertError) Error() string {
	return fmt.Sprintf("transcode failed for %s: %v", e.RawPath, e.Err)
}

func (e *ConvertError) Unwrap() error { return e.Err }

// FFmpeg runs the ffmpeg binary as a subprocess.
type FFmpeg struct {
	bin       string
	timeout   time.Duration
	extraArgs []string

	throttleCPU      float64
	throttleFreeMem  int64
	throttleFreeDisk int64
}

func NewFFmpeg(cfg *config.Config) (*FFmpeg, error) {
	extra, err := config.SplitExtraArgs(cfg.FFExtraArgs)
	if err != nil {
		return nil, fmt.Errorf("invalid ffmpeg extra args: %w", err)
	}
	return &FFmpeg{
		bin:              cfg.FFBin,
		timeout:          cfg.FFTimeout,
		extraArgs:        extra,
		throttleCPU:      cfg.ThrottleCPU,
		throttleFreeMem:  cfg.ThrottleFreeMem,
		throttleFreeDisk: cfg.ThrottleFreeDisk,
	}, nil
}

// Convert strips the video stream, forces a 44100 Hz sample rate and writes
// <input base>.<format ext> beside the input, overwriting any previous run.
func (f *FFmpeg) Convert(ctx context.Context, rawPath string, format settings.Format) (string, error) {
	if err := f.checkResources(rawPath); err != nil {
		return "", &ConvertError{RawPath: rawPath, Err: err}
	}

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	outPath := outputPath(rawPath, format)
	args := f.buildArgs(rawPath, outPath)

	cmd := exec.CommandContext(ctx, f.bin, args...)
	var outputBuf bytes.Buffer
	cmd.Stdout = &outputBuf
	cmd.Stderr = &outputBuf

	log.Printf("Executing: %s %s", f.bin, strings.Join(args, " "))

	if err := cmd.Run(); err != nil {
		// Drop the partial output so a failed item never leaks an artifact.
		os.Remove(outPath)
		return "", &ConvertError{RawPath: rawPath, Output: outputBuf.String(), Err: err}
	}

	return outPath, nil
}

func (f *FFmpeg) buildArgs(rawPath, outPath string) []string {
	args := []string{
		"-y",
		"-i", rawPath,
		"-vn",
		"-ar", "44100",
	}
	args = append(args, f.extraArgs...)
	return append(args, outPath)
}

func outputPath(rawPath string, format settings.Format) string {
	base := strings.TrimSuffix(rawPath, filepath.Ext(rawPath))
	return base + "." + format.Ext()
}

// checkResources verifies that the system has enough headroom to start
// another transcode. Thresholds at zero disable the corresponding check.
func (f *FFmpeg) checkResources(rawPath string) error {
	if f.throttleCPU > 0 {
		p, err := cpu.Percent(time.Second, false)
		if err != nil {
			log.Printf("Warning: could not get CPU usage: %v", err)
		} else if len(p) > 0 && p[0] > (100.0-f.throttleCPU) {
			return fmt.Errorf("not enough idle CPU. Current usage: %.2f%%, Idle threshold: %.2f%%", p[0], f.throttleCPU)
		}
	}

	if f.throttleFreeMem > 0 {
		vm, err := mem.VirtualMemory()
		if err != nil {
			log.Printf("Warning: could not get memory usage: %v", err)
		} else if vm.Available < uint64(f.throttleFreeMem) {
			return fmt.Errorf("not enough free memory. Available: %d, Required: %d", vm.Available, f.throttleFreeMem)
		}
	}

	if f.throttleFreeDisk > 0 {
		d, err := disk.Usage(filepath.Dir(rawPath))
		if err != nil {
			log.Printf("Warning: could not get disk usage for %s: %v", rawPath, err)
		} else if d.Free < uint64(f.throttleFreeDisk) {
			return fmt.Errorf("not enough free disk space. Available: %d, Required: %d", d.Free, f.throttleFreeDisk)
		}
	}
	return nil
}
