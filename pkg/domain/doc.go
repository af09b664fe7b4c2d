// Package domain holds the value types shared by the tracking service:
// geographic points, simulation runs and their snapshots, tracking updates,
// milestones, and the streaming protocol frames exchanged with watchers.
package domain
