// Package cursorstore persists stream cursor states to a local bbolt file
// so interrupted ingestion resumes where it left off across process
// restarts.
package cursorstore
