// Package specialist defines the capability profiles of the task executors
// the coordinator can route work to, and the registry that holds them.
package specialist
