// Package harness runs a perft corpus against an engine and records a verdict
// per record.
//
// # Run Lifecycle
//
// A run owns exactly one uci.Session:
//
//  1. Launch the engine and complete the uci/uciok handshake. Either failure
//     aborts the run before any record is evaluated.
//  2. For each record, in corpus order, send the position and a perft request
//     and compare the reported node count with the expected one.
//  3. Close the session on every exit path.
//
// # Failure Policy
//
// A node count mismatch fails that record only; the engine answered, so the
// next position command resynchronizes it and the run continues. A timeout or
// an engine exit faults the session, and every remaining record is reported
// as skipped with reason engine_faulted. With Config.FailFast the first
// failure of any kind skips the rest.
//
// # Deterministic Testing
//
// Config.Clock and Config.RunIDs accept testutil.DeterministicClock and
// runid.FixedGenerator so results, and the reports rendered from them, are
// reproducible. The ucitest package provides an in-memory engine:
//
//	eng := ucitest.New(ucitest.Script{Counts: counts})
//	result, err := harness.Run(ctx, records, eng, harness.Config{
//	    Clock:  testutil.NewDeterministicClock(),
//	    RunIDs: runid.NewFixedGenerator("run-1"),
//	})
package harness
