// Package runtime provides the process-wide dependency injection container.
// It wraps uber's dig so leaf components constructed outside the main
// Provide graph (provider factories selecting among sources) can pull a
// shared instance without holding a global singleton value themselves.
package runtime

import (
	"go.uber.org/dig"
)

// container is the application's global dependency injection container.
var container *dig.Container

func init() {
	container = dig.New()
}

// GetContainer returns the global container for registration or resolution.
func GetContainer() *dig.Container {
	return container
}
