package camerasvc

import (
	"context"
	"image"
	_ "image/jpeg" // decoders for still frames
	_ "image/png"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/ulms/core/proctor"
)

var stillExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true}

// StillCamera plays back an image file, or every image of a directory in name order.
type StillCamera struct {
	path string
}

var _ proctor.Camera = (*StillCamera)(nil)

func NewStillCamera(path string) *StillCamera {
	return &StillCamera{path: path}
}

func (c *StillCamera) Open(ctx context.Context) (proctor.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	paths, err := c.framePaths()
	if err != nil {
		return nil, err
	}
	frames := make([]image.Image, 0, len(paths))
	for _, p := range paths {
		img, err := decodeFile(p)
		if err != nil {
			return nil, err
		}
		frames = append(frames, img)
	}
	if len(frames) == 0 {
		return nil, errors.Errorf("no frames found in %s", c.path)
	}
	return &stillStream{frames: frames}, nil
}

func (c *StillCamera) framePaths() ([]string, error) {
	info, err := os.Stat(c.path)
	if err != nil {
		return nil, errors.Wrap(err, "opening capture device")
	}
	if !info.IsDir() {
		return []string{c.path}, nil
	}

	entries, err := ioutil.ReadDir(c.path)
	if err != nil {
		return nil, errors.Wrap(err, "listing frames")
	}
	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !stillExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		paths = append(paths, filepath.Join(c.path, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening frame")
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %s", filepath.Base(path))
	}
	return img, nil
}

type stillStream struct {
	mu      sync.Mutex
	frames  []image.Image
	next    int
	stopped bool
}

// Snapshot returns the frames round robin.
func (s *stillStream) Snapshot() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, errStreamStopped
	}
	img := s.frames[s.next]
	s.next = (s.next + 1) % len(s.frames)
	return img, nil
}

func (s *stillStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}

var errStreamStopped = errors.New("stream stopped")
