// Package tui provides the operator dashboard for monica.
//
// The dashboard is read-only. It polls the state database for the current
// budget period, pending suggestions and recent ledger entries, and shows a
// live event log when the engines run in the same process.
//
// Usage:
//
//	program, dash := tui.NewProgram(tui.Config{
//	    Source:      db,
//	    Budget:      guard,
//	    Events:      emitter.Events(),
//	    RefreshRate: cfg.TUI.RefreshRate,
//	})
//	if _, err := program.Run(); err != nil {
//	    return err
//	}
//
// Keys: 1-3 or tab switch panels, r refreshes, q quits. In the event log
// f cycles the type filter and g/G jump to the top or bottom.
package tui
