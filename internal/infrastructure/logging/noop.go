package logging

import (
	"context"

	"github.com/rockestra/rockestra/internal/rockestra/ports"
)

// NoOpLogger discards every call; used as a Host/Logger zero-value and
// returned by Logger.With on a nil receiver.
type NoOpLogger struct{}

func (NoOpLogger) Debug(context.Context, string, ...interface{}) {}
func (NoOpLogger) Info(context.Context, string, ...interface{})  {}
func (NoOpLogger) Warn(context.Context, string, ...interface{})  {}
func (NoOpLogger) Error(context.Context, string, ...interface{}) {}
func (l NoOpLogger) With(...interface{}) ports.Logger            { return l }

var _ ports.Logger = NoOpLogger{}
