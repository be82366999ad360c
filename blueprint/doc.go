// Package blueprint builds pipelines from YAML declarations.
//
// A blueprint lists layers explicitly, stages with dependencies, or both.
// Explicit layers come first, in file order. Stages are levelled with
// Kahn's algorithm and appended: a level holding one stage becomes a
// sequence layer, a wider level a parallel layer.
//
//	name: dti
//	includes: [preprocess]
//	processes:
//	  - name: tensor
//	    binary: dtifit
//	    args: ["-k", "{{.dwi}}", "-o", "{{.prefix}}"]
//	    required: [dwi]
//	    outputs: {fa: "{{.prefix}}_FA.nii.gz"}
//	layers:
//	  - name: fit
//	    units:
//	      - process: tensor
//	stages:
//	  - {name: fa-stats, process: roi-stats, depends_on: [qc]}
//	  - {name: qc, process: qc}
//
// Processes are resolved by name through a Registry of factories; the
// processes section registers external executables for this blueprint only.
package blueprint
