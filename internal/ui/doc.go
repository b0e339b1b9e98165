// Package ui renders aurora-sync output for the terminal.
//
// It uses Lip Gloss for one-shot output (success and error boxes, the status
// summary, the confirmation prompt) and Bubble Tea for the live watch view.
//
// # One-shot output
//
// Commands print through a Printer, which sizes boxes to the terminal:
//
//	printer := ui.NewPrinter(os.Stdout)
//	printer.PrintError("Pairing failed", err, ui.SplitHint(backend.TroubleshootingHint(err)))
//
// # Watch view
//
// RunWatch drives a full-screen model from any Source, normally a status feed
// subscription:
//
//	sub, err := statusfeed.Dial(ctx, ":8787")
//	if err != nil {
//	    return err
//	}
//	defer sub.Close()
//	return ui.RunWatch(ctx, sub)
//
// # Logging Integration
//
// zap logging is silent unless AURORA_LOG_LEVEL or --log-level is set, so the
// curated output here is not interleaved with log lines.
package ui
