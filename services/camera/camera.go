// Package camerasvc provides the video devices the capture loop can open.
//
// Devices are selected by name: an empty name or a filesystem path serves still images,
// "denied" simulates a refused permission and "<driver>:<address>" (e.g. "v4l2:/dev/video0")
// goes to a registered driver.
package camerasvc

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/ulms/core/proctor"
)

// Driver opens devices addressed as "<name>:<address>".
type Driver func(address string) (proctor.Camera, error)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Driver)
)

// Register makes a driver available by name. It panics if the name is taken.
func Register(name string, d Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if d == nil {
		panic("camerasvc: Register driver is nil")
	}
	if _, dup := drivers[name]; dup {
		panic("camerasvc: Register called twice for driver " + name)
	}
	drivers[name] = d
}

func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	return names
}

// New resolves device to a camera. fallback is served as a still image when device is empty.
func New(device, fallback string) (proctor.Camera, error) {
	switch {
	case device == "":
		if fallback == "" {
			return nil, errors.New("no capture device configured")
		}
		return NewStillCamera(fallback), nil
	case device == "denied":
		return DeniedCamera{}, nil
	}

	if i := strings.Index(device, ":"); i > 0 {
		name, address := device[:i], device[i+1:]
		driversMu.RLock()
		d, ok := drivers[name]
		driversMu.RUnlock()
		if !ok {
			return nil, errors.Errorf("unknown camera driver %q (forgotten build tag?)", name)
		}
		return d(address)
	}
	return NewStillCamera(device), nil
}

// DeniedCamera always refuses access, like a student dismissing the permission prompt.
type DeniedCamera struct{}

var _ proctor.Camera = DeniedCamera{}

func (DeniedCamera) Open(context.Context) (proctor.Stream, error) {
	return nil, proctor.ErrPermissionDenied
}
