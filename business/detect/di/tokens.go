// Package di holds the service registry token constants for the detect
// bounded context.
package di

const (
	Scanner = "detect.Scanner"
)
