// Package pipeline assembles processing steps into a concurrent dataflow
// graph and runs it.
//
// A Unit wraps one process.Process. Units are grouped into layers: a
// SequenceLayer chains its nodes, a ParallelLayer broadcasts each item to
// every node and merges the results. Layers nest. A Pipeline stacks layers
// between an input and an output subscriber, and an Executor feeds it from
// a comm.Source and collects what comes out.
//
// Every unit and every channel runs in its own goroutine. Items are keyed
// by comm.ID; partial packages for one ID are merged wherever paths meet.
//
//	p := pipeline.New("dwi", pipeline.WithMaxConcurrentProcesses(4))
//	prep := pipeline.NewSequenceLayer("prep")
//	_ = prep.AddUnit(pipeline.NewUnit("denoise", denoise))
//	_ = prep.AddUnit(pipeline.NewUnit("eddy", eddy))
//	_ = p.AddLayer(prep)
//	results, err := pipeline.NewExecutor(p, pipeline.WithSource(subjects)).Execute(ctx)
//
// A unit that fails recoverably on an item (MISSING_KEYS, TIMEOUT) skips
// that item and keeps going. Any other failure shuts the pipeline down and
// Run returns the root cause.
package pipeline
