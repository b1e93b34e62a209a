package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runDemo(t *testing.T, args ...string) (string, error) {
	t.Setenv("BILLING_LOG_LEVEL", "error")
	t.Setenv("BILLING_DEMO_CATALOG", "inapp:gold_pack:4990000:USD,subs:premium_monthly:9990000:USD")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

func TestCatalogCmd(t *testing.T) {
	out, err := runDemo(t, "catalog")
	require.NoError(t, err)
	assert.Contains(t, out, "gold_pack")
	assert.Contains(t, out, "4.99 USD")
	assert.Contains(t, out, "premium_monthly")
}

func TestPurchaseCmd(t *testing.T) {
	out, err := runDemo(t, "purchase", "gold_pack", "--consume")
	require.NoError(t, err)
	assert.Contains(t, out, "launched purchase flow for gold_pack")
	assert.Contains(t, out, "consumed token=")
	assert.Contains(t, out, "history has 1 record(s)")

	out, err = runDemo(t, "purchase", "premium_monthly", "--subscription")
	require.NoError(t, err)
	assert.Contains(t, out, "acknowledged: OK")
}

func TestPurchaseCmd_UnknownSku(t *testing.T) {
	_, err := runDemo(t, "purchase", "platinum_pack")
	assert.Error(t, err)
}
