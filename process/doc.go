// Package process provides the steps a Unit executes.
//
// A Process receives an item's package, runs, and reports the keys it
// produced. Two adapters are included: Func for in-process Go steps and Exec
// for external executables described by templates. Run executes a single
// subprocess with SIGTERM then SIGKILL on cancellation; Runner adds the
// per-step Options, retries and an optional circuit breaker on top of it.
//
//	denoise, err := process.Exec(process.ExecConfig{
//	    Name:     "denoise",
//	    Binary:   "dwidenoise",
//	    Args:     []string{"{{.dwi}}", "{{.prefix}}_den.nii.gz"},
//	    Required: []string{"dwi"},
//	    Outputs:  map[string]string{"dwi": "{{.prefix}}_den.nii.gz"},
//	})
package process
