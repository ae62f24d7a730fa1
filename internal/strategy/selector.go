// Package strategy decides how a backup or restore is executed and builds
// the command line for each execution strategy.
package strategy

import (
	"fmt"

	"github.com/fgeck/gopgbackup/internal/models"
)

// rule is one row of the precedence table. Rules for an operation are tried
// in order and the first whose condition holds wins.
type rule struct {
	operation models.OperationKind
	name      string
	when      func(caps models.CapabilitySet) bool
	choose    func(caps models.CapabilitySet) models.Strategy
}

// policy is the complete precedence table. Windows never picks the local
// dump client for backups; it is container-first.
var policy = []rule{
	{
		operation: models.OperationBackup,
		name:      "local dump client",
		when: func(caps models.CapabilitySet) bool {
			return caps.HasLocalDumpClient && caps.Platform != models.PlatformWindows
		},
		choose: fixed(models.StrategyLocalTool),
	},
	{
		operation: models.OperationBackup,
		name:      "containerized dump client",
		when:      hasContainerRuntime,
		choose:    fixed(models.StrategyContainerizedTool),
	},
	{
		operation: models.OperationRestoreContainer,
		name:      "platform restore script",
		when:      hasRestoreScript,
		choose:    platformScript,
	},
	{
		operation: models.OperationRestoreContainer,
		name:      "restore client inside container",
		when:      hasContainerRuntime,
		choose:    fixed(models.StrategyContainerizedTool),
	},
	{
		operation: models.OperationRestoreRemote,
		name:      "platform remote restore script",
		when:      hasRestoreScript,
		choose:    platformScript,
	},
	{
		operation: models.OperationRestoreRemote,
		name:      "local restore client",
		when:      func(models.CapabilitySet) bool { return true },
		choose:    fixed(models.StrategyLocalTool),
	},
}

// Select returns the strategy for op given caps. It is a pure function.
func Select(caps models.CapabilitySet, op models.OperationKind) (models.Strategy, error) {
	for _, r := range policy {
		if r.operation != op {
			continue
		}
		if r.when(caps) {
			return r.choose(caps), nil
		}
	}
	return models.Strategy{}, fmt.Errorf("%w for %s on %s", models.ErrNoStrategyAvailable, op, caps.Platform.DisplayName())
}

// Candidates lists the rule names considered for op, in precedence order.
func Candidates(op models.OperationKind) []string {
	var names []string
	for _, r := range policy {
		if r.operation == op {
			names = append(names, r.name)
		}
	}
	return names
}

// ScriptKindFor returns the script interpreter family used on p.
func ScriptKindFor(p models.Platform) models.ScriptKind {
	if p == models.PlatformWindows {
		return models.ScriptPowerShell
	}
	return models.ScriptBash
}

func fixed(kind models.StrategyKind) func(models.CapabilitySet) models.Strategy {
	return func(models.CapabilitySet) models.Strategy {
		return models.Strategy{Kind: kind}
	}
}

func platformScript(caps models.CapabilitySet) models.Strategy {
	return models.Strategy{Kind: models.StrategyPlatformScript, Script: ScriptKindFor(caps.Platform)}
}

func hasContainerRuntime(caps models.CapabilitySet) bool { return caps.HasContainerRuntime }

func hasRestoreScript(caps models.CapabilitySet) bool { return caps.RestoreScriptAvailable }
