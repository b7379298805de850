// Package surveylens carries the public identity of the module.
package surveylens

// Version is the surveylens release version.
const Version = "0.1.0"
