// Copyright (c) 2026 Livetally contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package bus provides typed in-process publish/subscribe channels.

Three buses carry the engine's server-push traffic, one per payload type:

	lifecycle := bus.New[models.LifecycleEvent]() // topic: event ID
	tallies := bus.New[models.TallySnapshot]()    // topic: event ID
	rights := bus.New[models.RightsEvent]()       // topic: participant ID

# Subscribing

	sub := tallies.Subscribe(eventID, 16)
	defer sub.Close()
	for snapshot := range sub.C {
		// render
	}

An empty topic subscribes to everything; the SSE bridge uses this to route
messages into per-event streams.

# Delivery Guarantees

Delivery to one subscriber is ordered. Publish never blocks: a full
subscriber buffer drops its oldest message first. All payloads carried here
are snapshot-style (the next message supersedes the previous), so skipping
intermediate messages under load is correct behavior. Reconnecting
subscribers fetch a fresh snapshot over REST rather than relying on replay.
*/
package bus
