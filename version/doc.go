// Package version exposes the build identity of the dwiflow binary.
//
// Version, commit and build time are set at compile time via -ldflags:
//
//	go build -ldflags "-X github.com/kbukum/dwiflow/version.Version=1.2.0" ./cmd/dwiflow
//
// When they are not set, the values recorded by the Go toolchain in the
// binary's build info are used.
package version
