// Package transaction groups device commands into blocks with fail-fast
// semantics and compensation rollback, and composes blocks into workflows
// with global rollback ordering.
//
// Rollback is CLI compensation in the Saga style: committed effects are
// reversed by running explicit inverse commands, not by a device-native
// transaction abort. The Engine drives any Executor (normally a pooled
// session handle) and emits lifecycle events to a recorder.
package transaction
