// Package render formats conversation output for a terminal. Assistant
// markdown is flattened to plain text and roles and connection states are
// coloured.
package render
