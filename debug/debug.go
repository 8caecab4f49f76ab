// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: debug.go — Loop-aligned diagnostic logging helper (zero-alloc)
//
// Purpose:
//   - Logs infrequent control paths without introducing heap pressure.
//   - Used only in cold paths: accept/evict transitions, auth results,
//     poller batch summaries, fatal startup diagnostics.
//
// Notes:
//   - Avoids fmt.Sprintf to minimize footprint and latency.
//   - Writes directly to stderr through utils.PrintWarning.
//
// ⚠️ Never invoke per-frame in hot loops — use only for state transitions.
// ─────────────────────────────────────────────────────────────────────────────

package debug

import "notifier/utils"

// DropMessage logs tagged diagnostics with a zero-allocation print strategy.
// Used for cold-path events: connection state changes, poll summaries, startup.
//
//go:nosplit
//go:inline
//go:registerparams
func DropMessage(prefix, message string) {
	msg := prefix + ": " + message + "\n"
	utils.PrintWarning(msg)
}

// DropError logs error paths with the same alloc-free strategy. A nil error
// prints just the prefix, for tagged warnings without an error object.
//
//go:nosplit
//go:inline
//go:registerparams
func DropError(prefix string, err error) {
	if err != nil {
		msg := prefix + ": " + err.Error() + "\n"
		utils.PrintWarning(msg)
	} else {
		msg := prefix + "\n"
		utils.PrintWarning(msg)
	}
}
