package plugin

import "github.com/alexisbeaulieu97/conveyor/internal/record"

// RecordEmitter buffers everything a plugin emits as tagged records. It
// implements both Emitter and MultiEmitter and is not safe for concurrent
// use; backends create one per invocation or reset between records.
type RecordEmitter struct {
	stage   string
	records []record.Info
}

// NewRecordEmitter creates an emitter that stamps error records and alerts
// with the given stage name when the plugin left it empty.
func NewRecordEmitter(stage string) *RecordEmitter {
	return &RecordEmitter{stage: stage}
}

// Emit buffers a normal output record.
func (e *RecordEmitter) Emit(rec any) {
	e.records = append(e.records, record.Output(rec))
}

// EmitPort buffers a record routed to the named port.
func (e *RecordEmitter) EmitPort(port string, rec any) {
	e.records = append(e.records, record.PortOutput(port, rec))
}

// EmitError buffers an error record.
func (e *RecordEmitter) EmitError(err *record.ErrorRecord) {
	if err == nil {
		return
	}
	if err.Stage == "" {
		err.Stage = e.stage
	}
	e.records = append(e.records, record.FromError(err))
}

// EmitAlert buffers an alert.
func (e *RecordEmitter) EmitAlert(alert *record.Alert) {
	if alert == nil {
		return
	}
	if alert.Stage == "" {
		alert.Stage = e.stage
	}
	e.records = append(e.records, record.FromAlert(alert))
}

// Records returns the buffered tagged records.
func (e *RecordEmitter) Records() []record.Info {
	return e.records
}

// Reset clears the buffer for reuse.
func (e *RecordEmitter) Reset() {
	e.records = e.records[:0]
}
