// Package feature implements the pipeline that dispatches agent lifecycle
// events to installed features.
//
// A feature is a pluggable cross-cutting component (tracing, metrics, token
// accounting, memory, user callbacks). Each agent owns one Pipeline; features
// are installed into it once per agent, register handlers for the events they
// care about and may publish an instance other components look up by Key:
//
//	p := feature.NewPipeline()
//	err := p.Install(feature.Use(tracing.Feature, func(c *tracing.Config) {
//		c.TracerProvider = tp
//	}))
//
// Dispatch invokes every handler of an event in registration order. Handler
// errors and panics are logged and contained; only errors wrapping
// core.ErrAbortRun are returned to the caller so the engine can fail the run.
package feature
