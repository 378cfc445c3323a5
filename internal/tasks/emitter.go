package tasks

import (
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/ytlib/internal/shared"
	"github.com/desertthunder/ytlib/internal/stream"
)

// Emitter writes a job's lines to the process logger and to the job's stream.
type Emitter struct {
	jobID  string
	logger *log.Logger
	broker *stream.Broker
}

// NewEmitter creates an emitter for jobID. Either sink may be nil.
func NewEmitter(jobID string, logger *log.Logger, broker *stream.Broker) *Emitter {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Emitter{
		jobID:  jobID,
		logger: shared.WithLogger(logger, "job", jobID),
		broker: broker,
	}
}

func (e *Emitter) Debug(phase Phase, msg string, kv ...any) { e.emit(log.DebugLevel, phase, msg, kv) }
func (e *Emitter) Info(phase Phase, msg string, kv ...any)  { e.emit(log.InfoLevel, phase, msg, kv) }
func (e *Emitter) Warn(phase Phase, msg string, kv ...any)  { e.emit(log.WarnLevel, phase, msg, kv) }
func (e *Emitter) Error(phase Phase, msg string, kv ...any) { e.emit(log.ErrorLevel, phase, msg, kv) }

// Progress emits u as an info line carrying its step counters and overall percentage.
func (e *Emitter) Progress(u ProgressUpdate) {
	level := log.InfoLevel
	if _, failed := u.Data.(error); failed {
		level = log.WarnLevel
	}
	e.emit(level, u.Phase, u.Message, []any{"step", u.Step, "total", u.Total, "overall", u.Overall()})
}

func (e *Emitter) emit(level log.Level, phase Phase, msg string, kv []any) {
	e.logger.Log(level, msg, append([]any{"phase", phase.String()}, kv...)...)

	// Debug lines stay in the process log.
	if e.broker == nil || level < log.InfoLevel {
		return
	}
	e.broker.Publish(stream.Entry{
		JobID:   e.jobID,
		Kind:    stream.KindLog,
		Level:   level.String(),
		Phase:   phase.String(),
		Message: msg,
		Fields:  fields(kv),
	})
}

func fields(kv []any) map[string]any {
	if len(kv) == 0 {
		return nil
	}
	m := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key := fmt.Sprint(kv[i])
		switch v := kv[i+1].(type) {
		case error:
			m[key] = v.Error()
		default:
			m[key] = v
		}
	}
	return m
}
