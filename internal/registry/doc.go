// Package registry keeps every registered version of every model plugin
// addressable by (name, version), tracks the most recently registered version
// per name, and binds task records to registered descriptors.
package registry
