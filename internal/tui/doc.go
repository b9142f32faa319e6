// Package tui provides the interactive run picker behind audit-log.
//
// The picker lists recorded runs newest first, one row per run condensed
// from its audit trail:
//
//	summaries := make([]tui.RunSummary, len(runs))
//	for i, id := range runs {
//	    events, _ := logger.Events(id)
//	    summaries[i] = tui.Summarize(id, events)
//	}
//	result, err := tui.RunPicker(summaries)
//	switch result.Action {
//	case tui.ActionShow:
//	    // print result.Run's events
//	case tui.ActionRemove:
//	    // delete result.Run's audit log
//	case tui.ActionQuit:
//	}
//
// Keys: enter (show), d (delete log), / (filter), q or esc (quit).
package tui
