// Package selector ranks a source's providers for one operation. It is a
// pure function over provider capabilities, health snapshots, and circuit
// snapshots, which keeps it independently testable against synthetic
// inputs: no clocks, no stores, no side effects.
package selector
