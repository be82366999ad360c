// Package dataset provides the sources a pipeline is fed from.
//
// Slice serves packages held in memory. Manifest describes subjects on
// disk and yields one item per subject and repetition:
//
//	subjects:
//	  - name: sub-01
//	    repetitions: 2
//	    files:
//	      dwi: sub-01/dwi.nii.gz
//	      bval: sub-01/dwi.bval
//	      bvec: sub-01/dwi.bvec
//
// Relative file paths are resolved against the manifest's directory.
package dataset
