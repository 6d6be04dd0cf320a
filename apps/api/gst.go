//go:build gst
// +build gst

package main

// v4l2 capture devices, e.g. capture.device=v4l2:/dev/video0
import _ "github.com/trezcool/ulms/services/camera/gstcam"
