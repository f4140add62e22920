package ingest

import "procodus.dev/nettest/internal/model"

// statusTokens maps the raw status a client submits to the final status of
// its test. Tokens not listed here resolve to defaultStatus.
var statusTokens = map[string]model.TestStatus{
	"0":       model.StatusFinished,
	"SUCCESS": model.StatusFinished,
	"1":       model.StatusError,
	"ERROR":   model.StatusError,
	"2":       model.StatusAborted,
	"ABORTED": model.StatusAborted,
}

const defaultStatus = model.StatusFinished

// ResolveStatus maps a raw status token to a terminal test status. A missing
// or unrecognized token resolves to FINISHED.
func ResolveStatus(token *string) model.TestStatus {
	if token == nil {
		return defaultStatus
	}
	if status, ok := statusTokens[*token]; ok {
		return status
	}
	return defaultStatus
}
