// Package di holds the business/arb context's DI container tokens.
package di

const (
	Executor            = "arb.Executor"
	CrossVenueSubmitter = "arb.CrossVenueSubmitter"
	HedgeTrigger        = "arb.HedgeTrigger"
	Notifier            = "arb.Notifier"
	Confirmer           = "arb.Confirmer"
	Monitor             = "arb.Monitor"
)
