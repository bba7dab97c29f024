// Package templates ships pre-built state machine configurations for common
// network device families, plus the per-vendor rules the transaction layer
// uses: command classification (show/config/exec) and rollback inference
// ("no"-prefix, "undo"-prefix and set/delete styles).
//
// Custom device templates can be supplied as YAML documents via LoadYAML.
package templates
