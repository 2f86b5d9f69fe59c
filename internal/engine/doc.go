// Package engine runs bound model tasks asynchronously. It instantiates task
// records against the model registry, persists every lifecycle transition
// and line of model output to the store, streams both to live subscribers,
// and hands the final notification to a Sender.
package engine
