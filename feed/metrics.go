package feed

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// framesTotal counts received frames by canonical target
	framesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rpawatch_feed_frames_total",
		Help: "Frames received from the feed by target",
	}, []string{"target"})

	// framesDropped counts pieces that were not valid JSON
	framesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rpawatch_feed_frames_dropped_total",
		Help: "Feed frames dropped as unparseable",
	})

	// recordsStored counts upserted records by kind and outcome
	recordsStored = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rpawatch_feed_records_total",
		Help: "Execution and log records processed by kind and result",
	}, []string{"kind", "result"})

	// connectsTotal counts connection attempts by result
	connectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rpawatch_feed_connects_total",
		Help: "Feed connection attempts by result",
	}, []string{"result"})
)
