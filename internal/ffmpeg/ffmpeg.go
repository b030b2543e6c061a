// Package ffmpeg wraps the ffmpeg/ffprobe binaries for probing, frame
// streaming and single-frame grabs. Everything here shells out; no cgo.
package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
)

// ErrNotFound is returned when the ffmpeg or ffprobe binary is not in PATH.
var ErrNotFound = errors.New("ffmpeg not found in PATH")

// Info is the subset of stream/format metadata the pipeline needs.
type Info struct {
	Width      int
	Height     int
	FPS        float64
	FrameCount int
	Duration   float64 // seconds
}

// Available reports whether both ffmpeg and ffprobe can be found.
func Available() bool {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return false
	}
	_, err := exec.LookPath("ffprobe")
	return err == nil
}

type probeOutput struct {
	Streams []struct {
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		RFrameRate string `json:"r_frame_rate"`
		NbFrames   string `json:"nb_frames"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe reads video metadata with ffprobe. The frame count is taken from the
// stream when the container records it and derived from duration*fps when it
// does not (common for MKV).
func Probe(ctx context.Context, videoPath string) (*Info, error) {
	if _, err := exec.LookPath("ffprobe"); err != nil {
		return nil, ErrNotFound
	}

	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate,nb_frames",
		"-show_entries", "format=duration",
		"-of", "json",
		videoPath,
	)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("ffprobe %s: %s", videoPath, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("ffprobe %s: %w", videoPath, err)
	}

	var po probeOutput
	if err := json.Unmarshal(out, &po); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(po.Streams) == 0 {
		return nil, fmt.Errorf("no video stream in %s", videoPath)
	}

	s := po.Streams[0]
	info := &Info{Width: s.Width, Height: s.Height}
	info.FPS = parseRate(s.RFrameRate)
	info.Duration, _ = strconv.ParseFloat(po.Format.Duration, 64)
	if n, err := strconv.Atoi(s.NbFrames); err == nil && n > 0 {
		info.FrameCount = n
	} else if info.FPS > 0 {
		info.FrameCount = int(info.Duration * info.FPS)
	}
	return info, nil
}

// parseRate converts an ffprobe rational like "30000/1001" to a float.
func parseRate(r string) float64 {
	num, den, ok := strings.Cut(r, "/")
	if !ok {
		v, _ := strconv.ParseFloat(r, 64)
		return v
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}

// GrayStream delivers decoded frames as raw 8-bit grayscale planes, one
// Width*Height byte slice per frame, in presentation order.
type GrayStream struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr bytes.Buffer
	size   int
}

// OpenGrayStream starts an ffmpeg process decoding the whole video to raw
// grayscale frames on a pipe. With hwaccel true, ffmpeg is asked to pick a
// hardware decoder ("-hwaccel auto"); the caller falls back to a plain
// stream if startup or the first read fails, since acceleration changes
// nothing about the output.
func OpenGrayStream(ctx context.Context, videoPath string, width, height int, hwaccel bool) (*GrayStream, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, ErrNotFound
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", width, height)
	}

	args := []string{"-v", "error"}
	if hwaccel {
		args = append(args, "-hwaccel", "auto")
	}
	args = append(args,
		"-i", videoPath,
		"-f", "rawvideo",
		"-pix_fmt", "gray",
		"-",
	)

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	gs := &GrayStream{cmd: cmd, stdout: stdout, size: width * height}
	cmd.Stderr = &gs.stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}
	return gs, nil
}

// ReadFrame fills buf (which must be Width*Height bytes) with the next frame.
// It returns io.EOF after the last frame.
func (gs *GrayStream) ReadFrame(buf []byte) error {
	if len(buf) != gs.size {
		return fmt.Errorf("frame buffer is %d bytes, want %d", len(buf), gs.size)
	}
	_, err := io.ReadFull(gs.stdout, buf)
	if err == io.ErrUnexpectedEOF {
		return io.EOF
	}
	return err
}

// Close terminates the decoder. Safe to call mid-stream (early stop).
func (gs *GrayStream) Close() error {
	gs.stdout.Close()
	if gs.cmd.Process != nil {
		gs.cmd.Process.Kill()
	}
	gs.cmd.Wait()
	return nil
}

// GrabFrame seeks to ts (seconds) and writes a single frame to outPath. The
// image format follows the output extension. The fast pre-input seek is
// accurate enough for keyframes taken from the middle of a scene.
func GrabFrame(ctx context.Context, videoPath string, ts float64, outPath string) error {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return ErrNotFound
	}

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-v", "error",
		"-ss", fmt.Sprintf("%.3f", ts),
		"-i", videoPath,
		"-frames:v", "1",
		"-q:v", "2",
		"-y", outPath,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("grab frame at %.2fs: %v: %s", ts, err, strings.TrimSpace(string(out)))
	}
	return nil
}
