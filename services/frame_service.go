package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"playforge/utils"
)

// ObjectStore receives extracted frames. B2Service is the production store.
type ObjectStore interface {
	Upload(ctx context.Context, objectName string, data []byte, contentType string) (*UploadResult, error)
}

type FrameRequest struct {
	VideoURL string `json:"videoUrl"`
	GameName string `json:"gameName"`
}

type FrameResult struct {
	FrameURLs []string `json:"frameUrls"`
	Message   string   `json:"message"`
}

type FrameOptions struct {
	Count    int
	Bytes    int
	MaxBytes int64
}

// FrameService produces preview frames for a game trailer. It does not decode
// video: it samples evenly spaced byte ranges of the file and stores each as
// a frame object.
type FrameService struct {
	store      ObjectStore
	httpClient *http.Client
	opts       FrameOptions
	now        func() time.Time
}

func NewFrameService(store ObjectStore, opts FrameOptions) *FrameService {
	if opts.Count <= 0 {
		opts.Count = 6
	}
	if opts.Bytes <= 0 {
		opts.Bytes = 64 << 10
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 8 << 20
	}
	return &FrameService{
		store:      store,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		opts:       opts,
		now:        time.Now,
	}
}

func (r FrameRequest) validate() error {
	if err := utils.ValidateHTTPURL(strings.TrimSpace(r.VideoURL)); err != nil {
		return invalid("videoUrl", err)
	}
	if err := utils.ValidateName("game name", strings.TrimSpace(r.GameName)); err != nil {
		return invalid("gameName", err)
	}
	return nil
}

// Extract downloads the video and uploads the sampled frames. The result
// always carries a message; FrameURLs is empty when nothing was stored.
func (s *FrameService) Extract(ctx context.Context, req FrameRequest) (*FrameResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if s.store == nil {
		return &FrameResult{FrameURLs: []string{}, Message: "frame storage is not configured"}, nil
	}

	video, err := s.download(ctx, strings.TrimSpace(req.VideoURL))
	if err != nil {
		return &FrameResult{FrameURLs: []string{}, Message: "could not fetch video"}, err
	}

	frames := sampleFrames(video, s.opts.Count, s.opts.Bytes)
	if len(frames) == 0 {
		return &FrameResult{FrameURLs: []string{}, Message: "video is empty"}, nil
	}

	prefix := fmt.Sprintf("frames/%s/%d", utils.Slugify(req.GameName), s.now().Unix())
	urls := make([]string, 0, len(frames))
	for i, frame := range frames {
		name := fmt.Sprintf("%s_%02d.bin", prefix, i+1)
		res, err := s.store.Upload(ctx, name, frame, "application/octet-stream")
		if err != nil {
			utils.LogError(fmt.Sprintf("Failed to store frame %d for %s", i+1, req.GameName), err)
			return &FrameResult{
				FrameURLs: urls,
				Message:   fmt.Sprintf("stored %d of %d frames", len(urls), len(frames)),
			}, err
		}
		urls = append(urls, res.SignedURL)
	}

	return &FrameResult{
		FrameURLs: urls,
		Message:   fmt.Sprintf("extracted %d frames", len(urls)),
	}, nil
}

func (s *FrameService) download(ctx context.Context, videoURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, videoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download video: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download video: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, s.opts.MaxBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read video: %w", err)
	}
	return data, nil
}

// sampleFrames cuts count slices of up to size bytes starting at evenly
// spaced offsets. Inputs shorter than count*size yield fewer slices.
func sampleFrames(data []byte, count, size int) [][]byte {
	if len(data) == 0 || count <= 0 || size <= 0 {
		return nil
	}
	if maxCount := (len(data) + size - 1) / size; count > maxCount {
		count = maxCount
	}

	stride := len(data) / count
	frames := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		start := i * stride
		end := start + size
		if end > len(data) {
			end = len(data)
		}
		frames = append(frames, data[start:end])
	}
	return frames
}
