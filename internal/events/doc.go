// Package events defines the gateway's wire frames and the machinery that
// distributes events to connected clients.
//
// Every broadcast gets a process-wide, strictly increasing seq. Clients use
// seq to order events and to notice gaps; after a gap they resync from the
// presence and health snapshots, whose generations travel separately in
// stateVersion.
//
// Delivery is best effort. A client whose unsent backlog exceeds the
// buffered-bytes limit is a slow consumer: events broadcast with DropIfSlow
// skip it, any other event disconnects it with close code 1008.
package events
