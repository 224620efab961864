package domain

import (
	"testing"

	detectdomain "github.com/predikt/arb-agent/business/detect/domain"
)

func TestScaleLegs_UnchangedWhenEveryLegFits(t *testing.T) {
	legs := []detectdomain.Leg{
		{TokenID: "yes", Price: 0.40, Shares: 100}, // $40
		{TokenID: "no", Price: 0.55, Shares: 100},  // $55
	}

	scaled := ScaleLegs(legs, 100)
	for i := range legs {
		if scaled[i].Shares != legs[i].Shares {
			t.Fatalf("leg %d: shares changed from %v to %v with room to spare", i, legs[i].Shares, scaled[i].Shares)
		}
	}
}

func TestScaleLegs_CapsLargestLegAndPreservesRatios(t *testing.T) {
	legs := []detectdomain.Leg{
		{TokenID: "yes", Price: 0.50, Shares: 1000}, // $500, the largest
		{TokenID: "no", Price: 0.25, Shares: 400},   // $100
	}

	scaled := ScaleLegs(legs, 250)

	if notional := scaled[0].Price * scaled[0].Shares; notional > 250+1e-9 {
		t.Fatalf("largest leg notional %v exceeds the cap", notional)
	}
	wantRatio := legs[0].Shares / legs[1].Shares
	gotRatio := scaled[0].Shares / scaled[1].Shares
	if diff := gotRatio - wantRatio; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("leg ratio drifted: want %v, got %v", wantRatio, gotRatio)
	}
	if scaled[0].Shares >= legs[0].Shares {
		t.Fatal("oversized leg must shrink")
	}
}

func TestScaleLegs_NoCapMeansNoScaling(t *testing.T) {
	legs := []detectdomain.Leg{{TokenID: "yes", Price: 0.50, Shares: 1e6}}
	scaled := ScaleLegs(legs, 0)
	if scaled[0].Shares != legs[0].Shares {
		t.Fatal("maxPositionSize <= 0 must disable scaling")
	}
}

func TestScaleLegs_ZeroPriceLegsLeftAlone(t *testing.T) {
	legs := []detectdomain.Leg{
		{TokenID: "a", Price: 0, Shares: 100},
		{TokenID: "b", Price: 0, Shares: 200},
	}
	scaled := ScaleLegs(legs, 50)
	for i := range legs {
		if scaled[i].Shares != legs[i].Shares {
			t.Fatal("legs with zero notional must not be scaled")
		}
	}
}
