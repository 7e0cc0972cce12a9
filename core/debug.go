package core

// DebugWriter is a function type for writing log lines
type DebugWriter func(string)

// Level orders log messages by importance.
type Level uint8

const (
	LevelDebug Level = iota
	LevelInfo
	LevelError
	LevelOff
)

var levelTags = [...]string{"DBG", "INF", "ERR"}

// Tag returns the three letter prefix used on log lines.
func (l Level) Tag() string {
	if int(l) < len(levelTags) {
		return levelTags[l]
	}
	return "???"
}

// EventRecord captures a safety-relevant engine event for post-mortem analysis
type EventRecord struct {
	Kind   uint8  // Event kind code
	Seq    uint16 // Monotonic sequence number
	Value1 uint32 // Context-dependent value
	Value2 uint32 // Context-dependent value
}

// Event kind codes
const (
	EvtReconfigure     = 1 // Value1=divisor factor, Value2=compare count
	EvtStop            = 2 // explicit stop from the foreground
	EvtEndstopStop     = 3 // Value1=latched direction
	EvtEmergencyStop   = 4
	EvtRateUnreachable = 5 // Value1=requested rate (um/s)
	EvtEndstopLatch    = 6 // Value1=latched direction
)

const (
	EventRingSize = 16 // Keep the last 16 events; RAM is tight on AVR
)

var (
	// logWriter is the global log sink (set by platform code)
	logWriter DebugWriter = func(s string) {} // No-op by default

	// logLevel is the lowest level that reaches logWriter
	logLevel = LevelInfo

	// Event ring buffer, written from interrupt and foreground context
	eventRing     [EventRingSize]EventRecord
	eventRingHead uint8
	eventSeq      uint16
)

// SetDebugWriter sets the platform-specific log output function.
// Platforms redirect it to the UART or to the serial link.
func SetDebugWriter(writer DebugWriter) {
	if writer == nil {
		writer = func(string) {}
	}
	logWriter = writer
}

// SetLogLevel sets the lowest level that is written.
func SetLogLevel(level Level) {
	logLevel = level
}

// LogEnabled reports whether messages at level are written.
func LogEnabled(level Level) bool {
	return level >= logLevel && level < LevelOff
}

// Log writes "[TAG] msg".
func Log(level Level, msg string) {
	if !LogEnabled(level) {
		return
	}
	logWriter("[" + level.Tag() + "] " + msg)
}

// LogValue writes "[TAG] msg: value".
func LogValue(level Level, msg string, value int64) {
	if !LogEnabled(level) {
		return
	}
	logWriter("[" + level.Tag() + "] " + msg + ": " + itoa(value))
}

func LogDebug(msg string) { Log(LevelDebug, msg) }
func LogInfo(msg string)  { Log(LevelInfo, msg) }
func LogError(msg string) { Log(LevelError, msg) }

// RecordEvent stores an event in the ring buffer.
// It never blocks or allocates and is safe to call from the tick handler.
// Callers must not hold a critical section.
func RecordEvent(kind uint8, value1, value2 uint32) {
	state := disableInterrupts()
	idx := eventRingHead
	eventSeq++
	eventRing[idx] = EventRecord{
		Kind:   kind,
		Seq:    eventSeq,
		Value1: value1,
		Value2: value2,
	}
	eventRingHead = (idx + 1) % EventRingSize
	restoreInterrupts(state)
}

// Events returns the recorded events from oldest to newest.
func Events() []EventRecord {
	state := disableInterrupts()
	ring := eventRing
	head := eventRingHead
	restoreInterrupts(state)

	out := make([]EventRecord, 0, EventRingSize)
	for i := uint8(0); i < EventRingSize; i++ {
		evt := ring[(head+i)%EventRingSize]
		if evt.Kind == 0 {
			continue // Empty slot
		}
		out = append(out, evt)
	}
	return out
}

// EventName returns a short name for an event kind.
func EventName(kind uint8) string {
	switch kind {
	case EvtReconfigure:
		return "RECONFIGURE"
	case EvtStop:
		return "STOP"
	case EvtEndstopStop:
		return "ENDSTOP_STOP"
	case EvtEmergencyStop:
		return "EMERGENCY_STOP"
	case EvtRateUnreachable:
		return "RATE_UNREACHABLE"
	case EvtEndstopLatch:
		return "ENDSTOP_LATCH"
	default:
		return "UNKNOWN"
	}
}

// DumpEvents writes the event ring to the log sink regardless of level.
func DumpEvents() {
	logWriter("[EVT] === Event Ring Dump ===")
	for _, evt := range Events() {
		logWriter("[EVT] " + EventName(evt.Kind) +
			" seq=" + itoa(int64(evt.Seq)) +
			" v1=" + itoa(int64(evt.Value1)) +
			" v2=" + itoa(int64(evt.Value2)))
	}
	logWriter("[EVT] === End Dump ===")
}

// ClearEvents clears the event ring
func ClearEvents() {
	state := disableInterrupts()
	for i := range eventRing {
		eventRing[i] = EventRecord{}
	}
	eventRingHead = 0
	eventSeq = 0
	restoreInterrupts(state)
}
