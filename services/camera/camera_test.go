package camerasvc

import (
	"context"
	"errors"
	"image/color"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ulms/core/proctor"
	"github.com/trezcool/ulms/tests"
)

func writeFrame(t *testing.T, dir, name string, c color.Color) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, ioutil.WriteFile(p, testutil.PNGBytes(t, testutil.SolidImage(8, 6, c)), 0o600))
	return p
}

func TestStillCamera_file(t *testing.T) {
	dir := t.TempDir()
	p := writeFrame(t, dir, "me.png", color.RGBA{R: 255, A: 255})

	stream, err := NewStillCamera(p).Open(context.Background())
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		img, err := stream.Snapshot()
		require.NoError(t, err)
		assert.Equal(t, 8, img.Bounds().Dx())
	}

	require.NoError(t, stream.Stop())
	require.NoError(t, stream.Stop())
	_, err = stream.Snapshot()
	assert.Error(t, err)
}

func TestStillCamera_directory(t *testing.T) {
	dir := t.TempDir()
	writeFrame(t, dir, "02.png", color.RGBA{G: 255, A: 255})
	writeFrame(t, dir, "01.png", color.RGBA{R: 255, A: 255})
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip me"), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o700))

	stream, err := NewStillCamera(dir).Open(context.Background())
	require.NoError(t, err)

	var reds []uint32
	for i := 0; i < 4; i++ {
		img, err := stream.Snapshot()
		require.NoError(t, err)
		r, _, _, _ := img.At(0, 0).RGBA()
		reds = append(reds, r>>8)
	}
	assert.Equal(t, []uint32{255, 0, 255, 0}, reds, "frames cycle in name order")
}

func TestStillCamera_errors(t *testing.T) {
	empty := t.TempDir()
	bad := filepath.Join(t.TempDir(), "bad.png")
	require.NoError(t, ioutil.WriteFile(bad, []byte("not a png"), 0o600))

	tests := []struct {
		name string
		path string
	}{
		{name: "missing", path: filepath.Join(empty, "nope.png")},
		{name: "empty directory", path: empty},
		{name: "undecodable", path: bad},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewStillCamera(tt.path).Open(context.Background())
			assert.Error(t, err)
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewStillCamera(bad).Open(ctx)
	assert.Equal(t, context.Canceled, err)
}

func TestNew(t *testing.T) {
	Register("fake", func(address string) (proctor.Camera, error) {
		return NewStillCamera(address), nil
	})
	assert.Contains(t, Drivers(), "fake")
	assert.Panics(t, func() { Register("fake", func(string) (proctor.Camera, error) { return nil, nil }) })

	tests := []struct {
		name     string
		device   string
		fallback string
		want     interface{}
		wantErr  bool
	}{
		{name: "fallback still", fallback: "ref.jpg", want: &StillCamera{path: "ref.jpg"}},
		{name: "nothing configured", wantErr: true},
		{name: "path", device: "/tmp/frames", want: &StillCamera{path: "/tmp/frames"}},
		{name: "denied", device: "denied", want: DeniedCamera{}},
		{name: "registered driver", device: "fake:/srv/frames", want: &StillCamera{path: "/srv/frames"}},
		{name: "unknown driver", device: "v4l9:/dev/video0", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cam, err := New(tt.device, tt.fallback)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, cam)
		})
	}
}

func TestDeniedCamera(t *testing.T) {
	_, err := DeniedCamera{}.Open(context.Background())
	assert.True(t, errors.Is(err, proctor.ErrPermissionDenied))
}
