package errors

import (
	"github.com/sirupsen/logrus"
)

// LogHandler is an ErrorHandler that logs errors through logrus.
type LogHandler struct {
	// Logger is the logrus logger to write to. Nil uses the standard logger.
	Logger *logrus.Logger
}

func (h *LogHandler) logger() *logrus.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return logrus.StandardLogger()
}

// HandleError logs a RuntimeError.
func (h *LogHandler) HandleError(err *RuntimeError) {
	if err == nil {
		return
	}
	entry := h.logger().WithFields(logrus.Fields{
		"op":   err.Op,
		"kind": err.Kind.String(),
	})
	if err.PV != "" {
		entry = entry.WithField("pv", err.PV)
	}
	entry.Error(err.Err)
}

// HandlePanic logs a PanicError.
func (h *LogHandler) HandlePanic(err *PanicError) {
	if err == nil {
		return
	}
	h.logger().WithField("op", err.Op).Errorf("recovered panic: %v", err.Value)
}
