// Package git reads revision information from local repositories that contain
// documented source roots. It never talks to a remote.
package git
