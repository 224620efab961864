// Package di contains dependency injection tokens for the mapping
// bounded context.
package di

// DI tokens for the mapping module.
const (
	Mapping = "mapping.Mapping"
)
