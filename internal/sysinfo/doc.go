// Package sysinfo reads host identity and utilisation figures for birth
// messages and the built-in system tags.
//
// Everything here is best-effort: a reading that fails returns an error to
// the caller, which logs it and carries on. Nothing in this package is
// allowed to take the node down.
package sysinfo
