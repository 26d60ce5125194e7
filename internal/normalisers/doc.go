// Package normalisers provides the text normalisers applied to every record
// before chunking. Each normaliser performs one deterministic step (charset
// repair, whitespace folding, language evidence) on a prepared record.
//
// Normalisers are registered by name with a Registry at startup and
// assembled into a Chain from the pipeline configuration.
package normalisers
