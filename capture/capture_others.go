//go:build !linux

package capture

import "fmt"

func openPipeWire(grant PipeWireGrant, geometry Geometry) (Source, error) {
	_, _ = grant, geometry
	return nil, fmt.Errorf("%w: %v", ErrSurfaceUnavailable, ErrNotImplemented)
}
