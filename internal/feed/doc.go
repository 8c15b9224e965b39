// Package feed simulates a live position feed for demos and local runs.
//
// On each tick of its cron schedule the Simulator picks a random position
// and field and moves the value by a random share of itself, rounded to
// cents. After a delay it inserts one new position. Events go to a Sink,
// normally the engine's event buffer.
package feed
