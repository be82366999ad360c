package logger

import (
	"time"
)

// Field keys used by the dataflow engine.
const (
	FieldComponent  = "component"
	FieldTraceID    = "trace_id"
	FieldSpanID     = "span_id"
	FieldItemID     = "item_id"
	FieldPipeline   = "pipeline"
	FieldLayer      = "layer"
	FieldUnit       = "unit"
	FieldChannel    = "channel"
	FieldSubscriber = "subscriber"
	FieldProcess    = "process"
	FieldDepth      = "depth"
	FieldDirection  = "direction"
	FieldState      = "state"
	FieldForce      = "force"
	FieldCount      = "count"
	FieldKeys       = "keys"
	FieldOperation  = "operation"
	FieldError      = "error"
	FieldDuration   = "duration_ms"
)

// Fields builds a map[string]interface{} from alternating key-value pairs.
//
//	log.Info("unit done", logger.Fields(logger.FieldUnit, "bet", logger.FieldCount, 3))
func Fields(kvs ...interface{}) map[string]interface{} {
	m := make(map[string]interface{}, len(kvs)/2)
	for i := 0; i < len(kvs)-1; i += 2 {
		if key, ok := kvs[i].(string); ok {
			m[key] = kvs[i+1]
		}
	}
	return m
}

// ItemFields creates fields for a single routed item.
func ItemFields(id interface{}, keys []string) map[string]interface{} {
	return map[string]interface{}{
		FieldItemID: id,
		FieldKeys:   keys,
	}
}

// ErrorFields creates fields for an operation that failed.
func ErrorFields(op string, err error) map[string]interface{} {
	return map[string]interface{}{
		FieldOperation: op,
		FieldError:     err.Error(),
	}
}

// DurationFields creates fields for a timed operation.
func DurationFields(op string, d time.Duration) map[string]interface{} {
	return map[string]interface{}{
		FieldOperation: op,
		FieldDuration:  d.Milliseconds(),
	}
}

// MergeWithError adds an error field to an existing map.
func MergeWithError(fields map[string]interface{}, err error) map[string]interface{} {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields[FieldError] = err.Error()
	return fields
}
