//go:build gst
// +build gst

// Package gstcam reads webcam frames through a GStreamer pipeline. It needs the
// GStreamer development libraries and is only built with -tags gst.
//
// Importing it registers the "v4l2" driver:
//
//	v4l2src device=<address> ! videoconvert ! videoscale !
//	video/x-raw,format=RGB,width=640,height=480 ! appsink max-buffers=1 drop=true
package gstcam

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/trezcool/ulms/core/proctor"
	"github.com/trezcool/ulms/services/camera"
)

const (
	Width  = 640
	Height = 480

	startTimeout = 5 * time.Second
)

var initOnce sync.Once

func init() {
	camerasvc.Register("v4l2", func(address string) (proctor.Camera, error) {
		return &Camera{Device: address}, nil
	})
}

type Camera struct {
	Device string
}

var _ proctor.Camera = (*Camera)(nil)

func (c *Camera) Open(ctx context.Context) (proctor.Stream, error) {
	initOnce.Do(func() { gst.Init(nil) })

	pipeline, sink, err := c.build()
	if err != nil {
		return nil, err
	}
	s := &stream{pipeline: pipeline}
	sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: s.onSample,
	})

	if err = pipeline.SetState(gst.StatePlaying); err != nil {
		return nil, errors.Wrap(proctor.ErrPermissionDenied, err.Error())
	}

	// the device is ours once the first frame arrives
	deadline := time.NewTimer(startTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		if _, err = s.Snapshot(); err == nil {
			return s, nil
		}
		select {
		case <-ctx.Done():
			_ = s.Stop()
			return nil, ctx.Err()
		case <-deadline.C:
			_ = s.Stop()
			return nil, errors.Wrapf(proctor.ErrPermissionDenied, "no frames from %s", c.Device)
		case <-tick.C:
		}
	}
}

func (c *Camera) build() (*gst.Pipeline, *app.Sink, error) {
	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, nil, errors.Wrap(err, "creating pipeline")
	}

	src, err := gst.NewElement("v4l2src")
	if err != nil {
		return nil, nil, errors.Wrap(err, "creating v4l2src")
	}
	if c.Device != "" {
		src.SetProperty("device", c.Device)
	}
	convert, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, nil, errors.Wrap(err, "creating videoconvert")
	}
	scale, err := gst.NewElement("videoscale")
	if err != nil {
		return nil, nil, errors.Wrap(err, "creating videoscale")
	}
	caps, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, nil, errors.Wrap(err, "creating capsfilter")
	}
	caps.SetProperty("caps", gst.NewCapsFromString("video/x-raw,format=RGB,width=640,height=480"))

	sink, err := app.NewAppSink()
	if err != nil {
		return nil, nil, errors.Wrap(err, "creating appsink")
	}
	sink.SetProperty("sync", false)
	sink.SetProperty("max-buffers", 1) // latest frame only
	sink.SetProperty("drop", true)

	if err = pipeline.AddMany(src, convert, scale, caps, sink.Element); err != nil {
		return nil, nil, errors.Wrap(err, "adding elements")
	}
	if err = gst.ElementLinkMany(src, convert, scale, caps, sink.Element); err != nil {
		return nil, nil, errors.Wrap(err, "linking elements")
	}
	return pipeline, sink, nil
}

type stream struct {
	pipeline *gst.Pipeline

	mu      sync.Mutex
	latest  *image.RGBA
	stopped bool
}

func (s *stream) onSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		return gst.FlowOK
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return gst.FlowOK
	}
	data := buffer.Map(gst.MapRead).Bytes()
	if len(data) < Width*Height*3 {
		buffer.Unmap()
		return gst.FlowOK
	}
	img := RGBToImage(data, Width, Height)
	buffer.Unmap()

	s.mu.Lock()
	s.latest = img
	s.mu.Unlock()
	return gst.FlowOK
}

func (s *stream) Snapshot() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, errors.New("stream stopped")
	}
	if s.latest == nil {
		return nil, errors.New("no frame yet")
	}
	return s.latest, nil
}

func (s *stream) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.latest = nil
	s.mu.Unlock()
	return s.pipeline.SetState(gst.StateNull)
}
