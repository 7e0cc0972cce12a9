//go:build tinygo

package core

import "runtime/interrupt"

// irqState is the interrupt mask saved when a critical section opens.
type irqState = interrupt.State

// disableInterrupts opens a critical section. Sections must stay a handful of
// loads and stores long and must never nest.
func disableInterrupts() irqState {
	return interrupt.Disable()
}

// restoreInterrupts closes the critical section opened by disableInterrupts.
func restoreInterrupts(state irqState) {
	interrupt.Restore(state)
}
