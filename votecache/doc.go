// Copyright (c) 2026 Livetally contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package votecache is the participant-side durable vote cycle cache.

# Role

The server-side ledger is always authoritative. This cache exists so a
participant client can survive reloads and reconnects without losing its
place in a vote cycle: how many votes it has used, whether it is exhausted,
and the counter to display. Sync overwrites local state from the server's
vote-status response whenever the two disagree.

# Keys

State is scoped to (event, poll):

	vote-state-{eventID}-{pollID}

The legacy poll-only key, poll-persistence-{pollID}, held a raw integer
counter. It is still honored read-only on load, interpreted as an active
cycle with that counter, but never written.

# Exhaustion

Exhausted is an explicit state tag. Restoring a counter from an exhausted
state yields used+1, the number the next vote would carry.
*/
package votecache
