package proctor

import (
	"context"
	"fmt"
	"image"
	"math/rand"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"github.com/trezcool/ulms/core"
)

const (
	DefaultMinDelay       = 5 * time.Second
	DefaultJitter         = 5 * time.Second
	defaultRenderInterval = time.Second / 30
)

type (
	// Camera hands out exclusive access to a video device.
	Camera interface {
		Open(ctx context.Context) (Stream, error)
	}

	// Stream is a live device stream. Snapshot and Stop may be called from different goroutines.
	Stream interface {
		Snapshot() (image.Image, error)
		Stop() error
	}

	// Sender is the outbound half of the verification channel.
	Sender interface {
		Send(FrameEmission) error
		Connected() bool
	}

	CaptureConfig struct {
		MinDelay       time.Duration
		Jitter         time.Duration
		PreviewSize    int
		RenderInterval time.Duration
		Rand           func() float64 // [0, 1)
		Clock          clock.Clock
		Logger         core.Logger

		OnReady   func()
		OnError   func(error)
		OnStopped func()
	}

	CaptureStats struct {
		Running       bool            `json:"running"`
		Permission    PermissionState `json:"permission"`
		FramesSent    int             `json:"framesSent"`
		FramesSkipped int             `json:"framesSkipped"`
		LastDelay     time.Duration   `json:"-"`
		LastError     string          `json:"lastError,omitempty"`
	}

	// CaptureLoop owns the camera session and emits frames on a randomized cadence.
	CaptureLoop struct {
		conf      CaptureConfig
		camera    Camera
		sender    Sender
		reference string

		mu            sync.Mutex
		permission    PermissionState
		lastErr       error
		stream        Stream
		timer         *clock.Timer
		gen           uint64
		running       bool
		framesSent    int
		framesSkipped int
		lastDelay     time.Duration
		preview       *image.RGBA

		renderDone chan struct{}
		renderWG   sync.WaitGroup
	}
)

// NewCaptureLoop wires a camera to a sender. reference is the enrollment photo data URL, immutable from now on.
func NewCaptureLoop(camera Camera, sender Sender, reference string, conf CaptureConfig) *CaptureLoop {
	if conf.MinDelay <= 0 {
		conf.MinDelay = DefaultMinDelay
	}
	if conf.Jitter <= 0 {
		conf.Jitter = DefaultJitter
	}
	if conf.PreviewSize <= 0 {
		conf.PreviewSize = DefaultPreviewSize
	}
	if conf.RenderInterval <= 0 {
		conf.RenderInterval = defaultRenderInterval
	}
	if conf.Rand == nil {
		conf.Rand = rand.Float64
	}
	if conf.Clock == nil {
		conf.Clock = clock.New()
	}
	return &CaptureLoop{
		conf:       conf,
		camera:     camera,
		sender:     sender,
		reference:  reference,
		permission: PermissionUnrequested,
	}
}

// Start requests the camera and, once granted, starts the preview and the capture cadence.
// A denial is recorded and reported through OnError; the returned error is informational only.
func (c *CaptureLoop) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	gen := c.gen
	c.mu.Unlock()

	stream, err := c.camera.Open(ctx)
	if err != nil {
		if !errors.Is(err, ErrPermissionDenied) {
			err = errors.Wrap(ErrPermissionDenied, err.Error())
		}
		c.mu.Lock()
		c.permission = PermissionDenied
		c.lastErr = err
		c.mu.Unlock()

		c.logWarn(fmt.Sprintf("camera unavailable, proctoring degraded: %v", err), err)
		if c.conf.OnError != nil {
			c.conf.OnError(err)
		}
		return err
	}

	c.mu.Lock()
	if c.gen != gen || c.running {
		// stopped (or started) while waiting for the device
		c.mu.Unlock()
		_ = stream.Stop()
		return nil
	}
	c.stream = stream
	c.permission = PermissionGranted
	c.lastErr = nil
	c.running = true
	c.gen++
	gen = c.gen
	c.renderDone = make(chan struct{})
	c.renderWG.Add(1)
	go c.renderLoop(gen, stream, c.renderDone)
	c.scheduleLocked(gen)
	c.mu.Unlock()

	if c.conf.OnReady != nil {
		c.conf.OnReady()
	}
	return nil
}

// nextDelay is uniform over [MinDelay, MinDelay+Jitter).
func (c *CaptureLoop) nextDelay() time.Duration {
	r := c.conf.Rand()
	if r < 0 || r >= 1 {
		r = 0
	}
	return c.conf.MinDelay + time.Duration(r*float64(c.conf.Jitter))
}

// scheduleLocked arms the single pending capture.
func (c *CaptureLoop) scheduleLocked(gen uint64) {
	if c.timer != nil {
		c.timer.Stop()
	}
	delay := c.nextDelay()
	c.lastDelay = delay
	c.timer = c.conf.Clock.AfterFunc(delay, func() { c.fire(gen) })
}

func (c *CaptureLoop) fire(gen uint64) {
	c.mu.Lock()
	if !c.running || c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	_, _ = c.capture(gen)

	c.mu.Lock()
	if c.running && c.gen == gen {
		c.scheduleLocked(gen)
	}
	c.mu.Unlock()
}

// CaptureFrame sends one frame now. It is a no-op, reporting false, unless the camera is granted,
// the reference is loaded and the channel is connected.
func (c *CaptureLoop) CaptureFrame() (bool, error) {
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()
	return c.capture(gen)
}

// capture never holds c.mu while talking to the device or the channel, so a stalled send
// cannot block Stop or Stats.
func (c *CaptureLoop) capture(gen uint64) (bool, error) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return false, nil
	}
	if c.permission != PermissionGranted || c.stream == nil || c.reference == "" || !c.sender.Connected() {
		c.framesSkipped++
		c.mu.Unlock()
		return false, nil
	}
	stream, reference := c.stream, c.reference
	c.mu.Unlock()

	frame, err := stream.Snapshot()
	if err != nil {
		return false, c.fail(gen, errors.Wrap(err, "taking snapshot"))
	}
	dataURL, err := EncodePNG(frame)
	if err != nil {
		return false, c.fail(gen, err)
	}

	c.mu.Lock()
	current := c.gen == gen
	c.mu.Unlock()
	if !current {
		return false, nil
	}
	if err = c.sender.Send(FrameEmission{ReferenceImage: reference, FrameImage: dataURL}); err != nil {
		c.mu.Lock()
		c.framesSkipped++
		c.mu.Unlock()
		return false, c.fail(gen, errors.Wrap(err, "sending frame"))
	}

	c.mu.Lock()
	c.framesSent++
	c.mu.Unlock()
	return true, nil
}

func (c *CaptureLoop) fail(gen uint64, err error) error {
	c.mu.Lock()
	if c.gen == gen {
		c.lastErr = err
	}
	c.mu.Unlock()
	c.logWarn(fmt.Sprintf("capture failed: %v", err), err)
	return err
}

func (c *CaptureLoop) renderLoop(gen uint64, stream Stream, done <-chan struct{}) {
	defer c.renderWG.Done()
	ticker := c.conf.Clock.Ticker(c.conf.RenderInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.render(gen, stream)
		}
	}
}

func (c *CaptureLoop) render(gen uint64, stream Stream) {
	frame, err := stream.Snapshot()
	if err != nil {
		return // device still warming up
	}
	preview := RenderCircularPreview(frame, c.conf.PreviewSize)

	c.mu.Lock()
	if c.running && c.gen == gen {
		c.preview = preview
	}
	c.mu.Unlock()
}

// Preview returns the latest circular preview, rendering one on demand if none exists yet.
func (c *CaptureLoop) Preview() (*image.RGBA, bool) {
	c.mu.Lock()
	preview, stream, gen := c.preview, c.stream, c.gen
	c.mu.Unlock()

	if preview != nil {
		return preview, true
	}
	if stream == nil {
		return nil, false
	}
	c.render(gen, stream)

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.preview, c.preview != nil
}

// Stop cancels the pending capture and the render loop, then releases the device.
// It never waits for a send in flight. Once it returns no scheduled callback has any effect
// and permission is back to unrequested. Calling it again is a no-op.
func (c *CaptureLoop) Stop() {
	c.mu.Lock()
	if !c.running {
		c.gen++ // cancels a Start still waiting for the device
		c.mu.Unlock()
		return
	}
	c.running = false
	c.permission = PermissionUnrequested
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	close(c.renderDone)
	stream := c.stream
	c.stream = nil
	c.preview = nil
	c.mu.Unlock()

	c.renderWG.Wait()
	if err := stream.Stop(); err != nil {
		c.logWarn(fmt.Sprintf("stopping camera stream: %v", err), err)
	}
	if c.conf.OnStopped != nil {
		c.conf.OnStopped()
	}
}

func (c *CaptureLoop) Permission() PermissionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.permission
}

func (c *CaptureLoop) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Pending reports whether a capture is scheduled.
func (c *CaptureLoop) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timer != nil
}

func (c *CaptureLoop) Stats() CaptureStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := CaptureStats{
		Running:       c.running,
		Permission:    c.permission,
		FramesSent:    c.framesSent,
		FramesSkipped: c.framesSkipped,
		LastDelay:     c.lastDelay,
	}
	if c.lastErr != nil {
		s.LastError = c.lastErr.Error()
	}
	return s
}

func (c *CaptureLoop) logWarn(msg string, args ...interface{}) {
	if c.conf.Logger != nil {
		c.conf.Logger.Warn(msg, args...)
	}
}
