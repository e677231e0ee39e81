// Package planner splits an object of known size into numbered parts.
package planner
