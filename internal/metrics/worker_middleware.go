package metrics

import (
	"time"
)

// QueueCollector feeds job-queue middleware callbacks into the worker
// gauges and the per-queue handler series.
type QueueCollector struct{}

func NewQueueCollector() *QueueCollector {
	return &QueueCollector{}
}

func (QueueCollector) finish(queue, outcome string, d time.Duration) {
	WorkerPoolActiveJobs.Dec()
	QueueHandlerRunsTotal.WithLabelValues(queue, outcome).Inc()
	QueueHandlerDuration.WithLabelValues(queue).Observe(d.Seconds())
}

func (QueueCollector) JobStarted(_, _ string) {
	WorkerPoolActiveJobs.Inc()
}

func (c QueueCollector) JobCompleted(_, queue string, d time.Duration) {
	c.finish(queue, "ok", d)
}

func (c QueueCollector) JobFailed(_, queue string, d time.Duration) {
	c.finish(queue, "error", d)
}

// JobRetrying is not expected: the watermark handler is registered with
// no retries, so a nonzero count means the queue is misconfigured.
func (QueueCollector) JobRetrying(_, queue string, _ int) {
	QueueHandlerRunsTotal.WithLabelValues(queue, "retry").Inc()
}
