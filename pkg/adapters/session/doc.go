// Package session provides session validators for watcher connections.
package session
