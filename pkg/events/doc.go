/*
Package events provides an in-memory broker for topology events.

Components publish lifecycle transitions (instance created/ready/failed,
volume bound/released, secret materialized, endpoint changes, topology
phase changes) and any number of subscribers receive every event.
Publish never blocks: the broker buffers, and a slow subscriber drops
events rather than stalling a control loop.
*/
package events
