// Package di holds the container token constants for the maker bounded
// context.
package di

const Service = "maker.Service"
