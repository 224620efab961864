// Package main is the entry point for the predikt connectivity probe: it
// checks /markets and /orderbook reachability against the current config
// for every venue without starting any WS feed or module.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/predikt/arb-agent/business/marketdata/domain"
	"github.com/predikt/arb-agent/business/marketdata/infra/opinion"
	"github.com/predikt/arb-agent/business/marketdata/infra/polymarket"
	"github.com/predikt/arb-agent/business/marketdata/infra/predict"
	"github.com/predikt/arb-agent/internal/config"
	"github.com/predikt/arb-agent/internal/logger"
)

var version = "dev"

// venueProbe is the subset of each venue client this probe needs: list one
// market, then fetch its orderbook.
type venueProbe interface {
	ListMarkets(ctx context.Context) ([]domain.Market, error)
	FetchOrderbook(ctx context.Context, tokenID string) (domain.Orderbook, error)
}

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to configuration file")
	timeout := flag.Duration("timeout", 10*time.Second, "Probe timeout per venue")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("predikt-health %s\n", version)
		os.Exit(0)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := run(ctx, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(os.Stderr, logger.LevelWarn, cfg.App.Name)

	predictClient, err := predict.New(predict.Config{
		BaseURL: cfg.Predict.APIBaseURL,
		APIKey:  cfg.Predict.APIKey,
		JWT:     cfg.Predict.JWTToken,
	}, log)
	if err != nil {
		return fmt.Errorf("predict: failed to build client: %w", err)
	}

	polymarketClient, err := polymarket.New(polymarket.Config{
		GammaURL: cfg.Polymarket.GammaURL,
		ClobURL:  cfg.Polymarket.ClobURL,
	}, log)
	if err != nil {
		return fmt.Errorf("polymarket: failed to build client: %w", err)
	}

	opinionClient, err := opinion.New(opinion.Config{
		OpenAPIURL: cfg.Opinion.OpenAPIURL,
		APIKey:     cfg.Opinion.APIKey,
	}, log)
	if err != nil {
		return fmt.Errorf("opinion: failed to build client: %w", err)
	}

	venues := []struct {
		name   string
		client venueProbe
	}{
		{"predict", predictClient},
		{"polymarket", polymarketClient},
		{"opinion", opinionClient},
	}

	var failed bool
	for _, v := range venues {
		if err := probe(ctx, v.client); err != nil {
			fmt.Printf("%-12s FAIL  %v\n", v.name, err)
			failed = true
			continue
		}
		fmt.Printf("%-12s OK\n", v.name)
	}

	if failed {
		return fmt.Errorf("one or more venues failed the reachability check")
	}
	return nil
}

// probe lists one market from the venue and fetches its orderbook, exercising
// both the /markets and /orderbook paths a single round trip can reach.
func probe(ctx context.Context, client venueProbe) error {
	markets, err := client.ListMarkets(ctx)
	if err != nil {
		return fmt.Errorf("/markets: %w", err)
	}
	if len(markets) == 0 {
		return nil
	}
	if _, err := client.FetchOrderbook(ctx, markets[0].TokenID); err != nil {
		return fmt.Errorf("/orderbook: %w", err)
	}
	return nil
}
