package scheduler

// Periodic maintenance task types. All of them are payload-free sweeps; the
// handlers read their scope from configuration.
const (
	// TaskReclaimStale returns jobs stuck in processing past the worker
	// lease to the pending queue.
	TaskReclaimStale = "automation.jobs.reclaim"

	// TaskOutboundReconcile flags outbound reply claims that stayed pending
	// past the reconcile horizon. Flag only: a stale pending claim may mean
	// the send happened right before a crash, so resending is never safe.
	TaskOutboundReconcile = "messaging.outbound.reconcile"

	// TaskInboundPrune deletes processed inbound event records older than
	// the retention window.
	TaskInboundPrune = "messaging.inbound.prune"

	// TaskFollowUpScan claims due lead follow-ups and enqueues one nudge
	// job per lead.
	TaskFollowUpScan = "leads.followup.scan"
)
