package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mwiesel/vodamon/internal/contract"
	"github.com/mwiesel/vodamon/internal/usage"
)

func int64p(v int64) *int64       { return &v }
func float64p(v float64) *float64 { return &v }

func TestRenderViewShowsCategoriesAndBilling(t *testing.T) {
	view := contract.NewView(usage.ContractUsage{
		ContractID: "123456789",
		Data: []usage.Item{
			{Name: "Data Flat", Remaining: int64p(2048), Total: int64p(5120), Unit: "MB"},
		},
		Minutes: []usage.Item{
			{Name: "Allnet", Used: int64p(42), Unit: "min"},
		},
		Billing: &usage.BillingSnapshot{
			CurrentSummary: float64p(12.5),
			LastSummary:    float64p(39.99),
		},
	})

	out := renderView(view)

	assert.Contains(t, out, "Contract 123456789")
	assert.Contains(t, out, "2048 MB left")
	assert.Contains(t, out, "5120 MB total")
	assert.Contains(t, out, "42 min used")
	assert.Contains(t, out, "Data Flat")
	assert.Contains(t, out, "12.50 EUR this cycle")
	assert.Contains(t, out, "39.99 EUR last cycle")
}

func TestRenderViewWithoutBilling(t *testing.T) {
	view := contract.NewView(usage.ContractUsage{ContractID: "123456789"})

	out := renderView(view)

	assert.Contains(t, out, "not included")
	assert.NotContains(t, out, "EUR")
}

func TestRenderSummaryEmpty(t *testing.T) {
	out := renderSummary(contract.CategorySummary{})
	assert.Contains(t, out, "not included")
}

func TestRenderFailure(t *testing.T) {
	out := renderFailure("123456789", errors.New("refresh cycle timed out"))
	assert.Contains(t, out, "Contract 123456789")
	assert.Contains(t, out, "refresh cycle timed out")
}
