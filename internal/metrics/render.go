package metrics

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/tastythames/credcheck/internal/batch"
	"github.com/tastythames/credcheck/internal/cache"
)

// JobStats is implemented by *batch.Dispatcher.
type JobStats interface {
	Stats() batch.DispatcherStats
}

// ScheduleStats is implemented by *scheduler.Scheduler.
type ScheduleStats interface {
	Stats() (started, skipped uint64)
}

// Renderer writes the Prometheus text exposition format.
type Renderer struct {
	Cache    cache.Cache
	Jobs     JobStats
	Schedule ScheduleStats
	now      func() time.Time
}

func NewRenderer(c cache.Cache, jobs JobStats) *Renderer {
	return &Renderer{Cache: c, Jobs: jobs, now: time.Now}
}

func (r *Renderer) Write(w io.Writer) {
	start := time.Now()
	now := r.now()

	header(w, MetricUp, "gauge", "1 if credcheck is running.")
	fmt.Fprintf(w, "%s 1\n", MetricUp)

	if r.Jobs != nil {
		st := r.Jobs.Stats()
		header(w, MetricJobsActive, "gauge", "Owners with a reserved or running batch.")
		fmt.Fprintf(w, "%s %d\n", MetricJobsActive, st.Active)
		header(w, MetricJobsStarted, "counter", "Batches started.")
		fmt.Fprintf(w, "%s %d\n", MetricJobsStarted, st.Started)
		header(w, MetricJobsCompleted, "counter", "Batches that validated every target.")
		fmt.Fprintf(w, "%s %d\n", MetricJobsCompleted, st.Completed)
		header(w, MetricJobsCancelled, "counter", "Batches stopped before the end.")
		fmt.Fprintf(w, "%s %d\n", MetricJobsCancelled, st.Cancelled)
		header(w, MetricNotificationsDropped, "counter", "Messages dropped by full outboxes.")
		fmt.Fprintf(w, "%s %d\n", MetricNotificationsDropped, st.Dropped)
	}

	if r.Schedule != nil {
		started, skipped := r.Schedule.Stats()
		header(w, MetricScheduledStarted, "counter", "Scheduled batches started.")
		fmt.Fprintf(w, "%s %d\n", MetricScheduledStarted, started)
		header(w, MetricScheduledSkipped, "counter", "Scheduled batches skipped because one was running or failed.")
		fmt.Fprintf(w, "%s %d\n", MetricScheduledSkipped, skipped)
	}

	header(w, MetricTargetUp, "gauge", "1 if the last validation of the target succeeded.")
	header(w, MetricValidationDuration, "gauge", "Duration of the last validation.")
	header(w, MetricLastValidationTs, "gauge", "Unix timestamp of the last validation.")
	header(w, MetricResultAgeSeconds, "gauge", "Age of the cached result per target.")

	var snap map[string]cache.Result
	if r.Cache != nil {
		snap = r.Cache.Snapshot()
	}

	targets := make([]string, 0, len(snap))
	for t := range snap {
		targets = append(targets, t)
	}
	sort.Strings(targets)

	for _, t := range targets {
		res := snap[t]
		labels := formatLabels(map[string]string{
			"target": t,
			"host":   res.Host,
			"owner":  res.Owner,
		})

		up := 1
		if !res.OK() {
			up = 0
		}
		fmt.Fprintf(w, "%s%s %d\n", MetricTargetUp, labels, up)
		fmt.Fprintf(w, "%s%s %.3f\n", MetricValidationDuration, labels, res.Duration.Seconds())
		fmt.Fprintf(w, "%s%s %d\n", MetricLastValidationTs, labels, res.At.Unix())
		fmt.Fprintf(w, "%s%s %.3f\n", MetricResultAgeSeconds, labels, now.Sub(res.At).Seconds())
	}

	header(w, MetricRenderDurationSeconds, "gauge", "Time spent rendering /metrics.")
	fmt.Fprintf(w, "%s %.6f\n", MetricRenderDurationSeconds, time.Since(start).Seconds())
}

func header(w io.Writer, name, typ, help string) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s %s\n", name, typ)
}

var labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

func formatLabels(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k, v := range m {
		if v != "" {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("{")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, `%s="%s"`, k, labelEscaper.Replace(m[k]))
	}
	b.WriteString("}")
	return b.String()
}
