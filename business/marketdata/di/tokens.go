// Package di contains dependency injection tokens for the marketdata
// bounded context.
package di

// DI tokens for the marketdata module.
const (
	BookStore         = "marketdata.BookStore"
	PredictCatalog    = "marketdata.PredictCatalog"
	PolymarketCatalog = "marketdata.PolymarketCatalog"
	OpinionCatalog    = "marketdata.OpinionCatalog"
	PredictClient     = "marketdata.PredictClient"
	PredictSubmitter  = "marketdata.PredictSubmitter"
	PolymarketClient  = "marketdata.PolymarketClient"
	OpinionClient     = "marketdata.OpinionClient"
	PredictWsFeed     = "marketdata.PredictWsFeed"
	PolymarketWsFeed  = "marketdata.PolymarketWsFeed"
	OpinionWsFeed     = "marketdata.OpinionWsFeed"
)
