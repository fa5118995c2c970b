// Package engine drives the capture lifecycle: a monitor loop that polls
// sources for liveness, a per-task recorder that segments the stream to disk,
// and a publication pipeline that pushes finished segments out. The engine
// owns all task state transitions; persistence, probing, capturing, and
// publishing are injected collaborators.
package engine
