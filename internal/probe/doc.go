// Package probe answers "is this stream live, and what is it called" by
// invoking streamlink in JSON mode and classifying its output. An offline
// stream is a normal answer, not an error; only tool failures and unreadable
// output surface as errors.
package probe
