package frames

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

func isRemote(ref string) bool {
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// download fetches videoURL into dir and returns the local path
func download(ctx context.Context, videoURL, dir string, timeout time.Duration) (string, error) {
	client := &http.Client{Timeout: timeout}

	req, err := http.NewRequestWithContext(ctx, "GET", videoURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download video: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("video download returned status %d", resp.StatusCode)
	}

	target := filepath.Join(dir, "source"+videoExt(videoURL))
	file, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("failed to create video file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, resp.Body); err != nil {
		return "", fmt.Errorf("failed to save video: %w", err)
	}

	return target, nil
}

func videoExt(videoURL string) string {
	u, err := url.Parse(videoURL)
	if err != nil {
		return ".mp4"
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if ext == "" || len(ext) > 5 {
		return ".mp4"
	}
	return ext
}
