// Package util provides small generic helpers shared by the dwiflow packages:
// key-set operations over packages and name sanitization for log files.
package util
