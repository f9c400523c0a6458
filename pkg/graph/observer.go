package graph

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/momento-app/momento-graph/pkg/graph/metrics"
)

// EventType identifies a pipeline lifecycle event.
type EventType string

const (
	EventStarted        EventType = "started"
	EventProviderCalled EventType = "provider_called"
	EventFellBack       EventType = "fell_back"
	EventSucceeded      EventType = "succeeded"
	EventFailed         EventType = "failed"
)

// Event is the immutable payload delivered to observers.
type Event struct {
	Type      EventType
	EntryID   string
	Provider  string
	Attempt   int
	Latency   time.Duration
	Entities  int
	Relations int
	Err       error
}

// Observer receives pipeline lifecycle events. Observers are side channels:
// they cannot alter the extraction outcome, and a panicking or failing
// observer never aborts the pipeline.
type Observer interface {
	Notify(event Event)
}

// notifyAll fans an event out to every observer, isolating panics.
func notifyAll(observers []Observer, log *logrus.Entry, event Event) {
	for _, obs := range observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.WithField("event", event.Type).Warnf("observer panicked: %v", r)
				}
			}()
			obs.Notify(event)
		}()
	}
}

// LogObserver logs pipeline progress.
type LogObserver struct {
	log *logrus.Entry
}

// NewLogObserver builds an observer that logs against the given logger.
func NewLogObserver(logger *logrus.Logger) *LogObserver {
	return &LogObserver{log: logger.WithField("component", "pipeline")}
}

func (o *LogObserver) Notify(event Event) {
	fields := logrus.Fields{
		"entry_id": event.EntryID,
		"provider": event.Provider,
	}
	switch event.Type {
	case EventStarted:
		o.log.WithFields(fields).Info("extraction started")
	case EventProviderCalled:
		fields["attempt"] = event.Attempt
		o.log.WithFields(fields).Debug("provider called")
	case EventFellBack:
		o.log.WithFields(fields).WithError(event.Err).Warn("falling back to local provider")
	case EventSucceeded:
		fields["entities"] = event.Entities
		fields["relations"] = event.Relations
		fields["latency"] = event.Latency.String()
		o.log.WithFields(fields).Info("extraction succeeded")
	case EventFailed:
		o.log.WithFields(fields).WithError(event.Err).Error("extraction failed")
	}
}

// MetricsObserver records pipeline events into prometheus collectors.
type MetricsObserver struct{}

// NewMetricsObserver returns the prometheus-backed observer.
func NewMetricsObserver() *MetricsObserver { return &MetricsObserver{} }

func (o *MetricsObserver) Notify(event Event) {
	switch event.Type {
	case EventProviderCalled:
		metrics.ProviderCallsTotal.WithLabelValues(event.Provider).Inc()
	case EventFellBack:
		metrics.ExtractionFallbacksTotal.Inc()
	case EventSucceeded:
		metrics.ExtractionsTotal.WithLabelValues(event.Provider, "success").Inc()
		metrics.ExtractionDuration.WithLabelValues(event.Provider, "success").Observe(event.Latency.Seconds())
	case EventFailed:
		metrics.ExtractionsTotal.WithLabelValues(event.Provider, "error").Inc()
		metrics.ExtractionDuration.WithLabelValues(event.Provider, "error").Observe(event.Latency.Seconds())
	}
}
