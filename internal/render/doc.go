// Package render draws agent content for the browser and the terminal.
//
// Dispatch is the one place that maps a finalized content item to a region
// kind and content value, so stored history renders the same way the live
// stream did.
//
// HTML implements stream.Renderer by emitting named browser events whose JSON
// payload carries an HTML fragment. Markdown goes through goldmark with raw
// HTML disabled.
//
// Terminal implements stream.Renderer for a plain writer. It cannot rewrite
// earlier output, so growing text regions print only what is new. Transcript
// prints stored messages with glamour-formatted markdown and lipgloss tables.
package render
