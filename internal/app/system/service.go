// Package system provides lifecycle management for long-running components.
package system

import "context"

// Service is a long-running component with an explicit start and stop.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
