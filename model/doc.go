// Package model defines the provider-neutral generation interface used by
// agents and flows. A Model consumes a normalized Request (instructions,
// conversation contents, tool definitions) and produces a stream of Response
// chunks over a channel, with partial chunks preceding the final one when
// streaming is enabled. Concrete adapters live in subpackages (openai,
// anthropic); MockModel provides deterministic behavior for tests and
// examples.
package model
