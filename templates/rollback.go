package templates

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/netgrip/netgrip/transaction"
)

// ErrAmbiguousRollback reports a command whose inverse cannot be inferred and
// for which no explicit undo command was supplied.
var ErrAmbiguousRollback = errors.New("ambiguous rollback")

// ClassifyCommand classifies a command into a block kind using per-vendor
// prefix rules.
func ClassifyCommand(v Vendor, cmd string) transaction.BlockKind {
	c := strings.ToLower(strings.TrimSpace(cmd))
	for _, p := range showPrefixes(v) {
		if strings.HasPrefix(c, p) {
			return transaction.Show
		}
	}
	for _, p := range execPrefixes() {
		if strings.HasPrefix(c, p) {
			return transaction.Exec
		}
	}
	return transaction.Config
}

func showPrefixes(v Vendor) []string {
	switch v {
	case Huawei, H3C:
		return []string{"display "}
	case Hillstone:
		return []string{"show ", "get "}
	default:
		return []string{"show "}
	}
}

func execPrefixes() []string {
	return []string{
		"ping", "traceroute", "tracert",
		"copy ", "write", "save", "commit",
		"clear ", "reset ", "reload", "reboot",
		"request ",
	}
}

// InferRollback derives the compensating command for a config command in the
// vendor's rollback style: "no"-prefix (cisco, array, hillstone),
// "undo"-prefix (huawei, h3c) or set/delete (juniper). ok is false when the
// inverse is ambiguous and an explicit undo command is required.
func InferRollback(v Vendor, cmd string) (string, bool) {
	c := strings.TrimSpace(cmd)
	if c == "" || ClassifyCommand(v, c) != transaction.Config {
		return "", false
	}
	switch v {
	case Huawei, H3C:
		return prefixInverse(c, "undo ")
	case Juniper:
		if rest, ok := strings.CutPrefix(c, "set "); ok {
			return "delete " + rest, true
		}
		// delete/edit/insert need the original value to restore.
		return "", false
	default:
		return prefixInverse(c, "no ")
	}
}

// prefixInverse toggles a negation prefix: "no X" <-> "X".
func prefixInverse(cmd, prefix string) (string, bool) {
	if rest, ok := strings.CutPrefix(cmd, prefix); ok {
		return rest, true
	}
	return prefix + cmd, true
}

// BuildTxBlock assembles a transaction block from plain command lines using
// the vendor's classification and rollback-inference rules. explicitUndo maps
// a command index to its undo command and overrides inference; commands whose
// inverse is ambiguous require an entry, otherwise ErrAmbiguousRollback is
// returned. A block made solely of show commands gets the none policy;
// anything else runs fail-fast under the per-step policy. A nil timeout means
// the session default.
func BuildTxBlock(v Vendor, name, mode string, commands []string, timeout *time.Duration, explicitUndo map[int]string) (transaction.Block, error) {
	if len(commands) == 0 {
		return transaction.Block{}, fmt.Errorf("%w: block %q has no commands", transaction.ErrInvalidTransaction, name)
	}

	allShow := true
	kinds := make([]transaction.BlockKind, len(commands))
	for i, cmd := range commands {
		kinds[i] = ClassifyCommand(v, cmd)
		if kinds[i] != transaction.Show {
			allShow = false
		}
	}

	block := transaction.Block{
		Name:     name,
		FailFast: true,
	}

	if allShow {
		block.Kind = transaction.Show
		block.Rollback = transaction.NoRollback()
		for _, cmd := range commands {
			block.Steps = append(block.Steps, transaction.Step{Mode: mode, Command: cmd, Timeout: timeout})
		}
		return block, nil
	}

	block.Kind = transaction.Config
	block.Rollback = transaction.PerStep()
	for i, cmd := range commands {
		step := transaction.Step{Mode: mode, Command: cmd, Timeout: timeout}
		switch {
		case explicitUndo[i] != "":
			step.RollbackCommand = explicitUndo[i]
		case kinds[i] == transaction.Show:
			// Read-only step: nothing to compensate.
		default:
			undo, ok := InferRollback(v, cmd)
			if !ok {
				return transaction.Block{}, fmt.Errorf("%w: command %d %q needs an explicit undo command", ErrAmbiguousRollback, i, cmd)
			}
			step.RollbackCommand = undo
		}
		block.Steps = append(block.Steps, step)
	}
	return block, nil
}
