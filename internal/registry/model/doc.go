// Package model defines the registry's resource variants and their shared
// lifecycle state.
//
// Domain, Contact, and Host form a closed union behind the Resource
// interface. Relations between resources are expressed as external names or
// repository ids, never as direct references, so cross-referencing entities
// cannot form in-memory cycles.
package model
