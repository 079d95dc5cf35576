package external

import "log/slog"

// ReportSignal wakes the out-of-scope report-rendering worker once an
// experiment has transitioned to needs-report. Like Bot, it is consumed
// through internal/notify's drain-worker path rather than called inline
// from the assignment engine.
type ReportSignal interface {
	ReportNeeded(experiment string) error
}

// LogReportSignal is the default ReportSignal: it only logs, since the
// real report-rendering worker is out of scope.
type LogReportSignal struct {
	log *slog.Logger
}

func NewLogReportSignal(log *slog.Logger) *LogReportSignal {
	return &LogReportSignal{log: log}
}

func (s *LogReportSignal) ReportNeeded(experiment string) error {
	s.log.Info("experiment needs report", "experiment", experiment)
	return nil
}
