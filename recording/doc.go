// Package recording captures the observable event stream of a device session
// and replays it offline.
//
// A Recorder is an append-only, thread-safe event log with three verbosity
// levels and a JSONL codec. A Replayer walks a recording's command_output
// events and hands back the stored outputs without a live device, which is how
// integration flows are tested against captured fixtures. Normalize rewrites
// raw recordings into deterministic fixtures.
package recording
