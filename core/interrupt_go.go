//go:build !tinygo

package core

// irqState stands in for the saved interrupt mask on regular Go.
type irqState uintptr

// Host builds have no interrupts. The depth counters let tests check that
// critical sections are balanced and never nest.
var (
	criticalDepth int
	criticalMax   int
)

func disableInterrupts() irqState {
	criticalDepth++
	if criticalDepth > criticalMax {
		criticalMax = criticalDepth
	}
	return irqState(criticalDepth)
}

func restoreInterrupts(state irqState) {
	criticalDepth--
}
