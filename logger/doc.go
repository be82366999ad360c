// Package logger provides structured logging for dwiflow using zerolog.
//
// Every engine component (subscriber, channel, unit, layer, pipeline) logs
// through a component-scoped logger carrying the field keys declared in
// fields.go, so a single item can be followed through the graph by item_id.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "json"
//	  output: "stderr"
//
// # Usage
//
//	log := logger.Get("channel").WithFields(logger.Fields(logger.FieldDepth, 2))
//	log.Debug("round complete", logger.Fields(logger.FieldCount, n))
package logger
