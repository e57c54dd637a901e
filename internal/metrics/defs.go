package metrics

const (
	// exporter health
	MetricUp = "credcheck_up"

	// target health
	MetricTargetUp           = "credcheck_target_up"
	MetricValidationDuration = "credcheck_validation_duration_seconds"
	MetricLastValidationTs   = "credcheck_last_validation_timestamp_seconds"
	MetricResultAgeSeconds   = "credcheck_result_age_seconds"

	// batches
	MetricJobsActive           = "credcheck_jobs_active"
	MetricJobsStarted          = "credcheck_jobs_started_total"
	MetricJobsCompleted        = "credcheck_jobs_completed_total"
	MetricJobsCancelled        = "credcheck_jobs_cancelled_total"
	MetricNotificationsDropped = "credcheck_notifications_dropped_total"

	// scheduler
	MetricScheduledStarted = "credcheck_scheduled_batches_started_total"
	MetricScheduledSkipped = "credcheck_scheduled_batches_skipped_total"

	MetricRenderDurationSeconds = "credcheck_render_duration_seconds"
)
