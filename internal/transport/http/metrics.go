package httptransport

import "expvar"

var (
	metricEventSubmitTotal     = expvar.NewInt("event_submit_total")
	metricEventSubmitDuplicate = expvar.NewInt("event_submit_duplicate_total")
	metricEventSubmitErrors    = expvar.NewInt("event_submit_errors_total")

	metricRoundComputeTotal  = expvar.NewInt("round_compute_total")
	metricFightFinalizeTotal = expvar.NewInt("fight_finalize_total")

	metricJobTriggerTotal  = expvar.NewInt("job_trigger_total")
	metricJobTriggerErrors = expvar.NewInt("job_trigger_errors_total")
)
