package batch

import "fmt"

const (
	MsgAlreadyRunning  = "❌ You already have a batch running. Cancel it before starting a new one."
	MsgNoTargets       = "❌ No targets available."
	MsgFinished        = "✅ Finished testing all targets."
	MsgStopped         = "✅ Batch stopped."
	MsgNothingToCancel = "❌ No active batch to stop."
	MsgShuttingDown    = "❌ Service is shutting down, try again later."
)

func msgStarted(n int) string {
	return fmt.Sprintf("📧 Please wait while we test %d targets.", n)
}

func msgSuccess(id string) string {
	return fmt.Sprintf("✅ Target %s works.", id)
}

func msgFailure(id, reason string) string {
	return fmt.Sprintf("❌ Failed using target %s: %s", id, reason)
}

func msgStoreFailed(err error) string {
	return fmt.Sprintf("❌ Could not load targets: %v", err)
}
