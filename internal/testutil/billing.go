// Package testutil provides shared fixtures for tests: a small billing
// dataset (clients, invoices, payments) and the models describing it.
package testutil

import (
	"context"
	_ "embed"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/atk4/report/internal/model"
	"github.com/atk4/report/internal/store"
)

// BillingFixture seeds two clients, three invoices and two payments:
//
//	client   1 Vinny, 2 Zoe
//	invoice  (Vinny, chair purchase, 4) (Vinny, table purchase, 15) (Zoe, chair purchase, 4)
//	payment  (Vinny, prepay, 10) (Zoe, full pay, 4)
//
//go:embed billing.yaml
var BillingFixture []byte

// Client returns the client model: id, name.
func Client() *model.Model {
	m := model.New("client")
	m.AddField("name")
	return m
}

// Invoice returns the invoice model: id, name, client_id, amount (money).
func Invoice() *model.Model {
	return billingDocument("invoice")
}

// Payment returns the payment model: id, name, client_id, amount (money).
func Payment() *model.Model {
	return billingDocument("payment")
}

func billingDocument(table string) *model.Model {
	m := model.New(table)
	m.AddField("name")
	m.HasOne("client_id", Client())
	m.AddField("amount", model.WithType(model.TypeMoney))
	return m
}

// InvoiceWithClient is Invoice plus a "client" title field holding the
// client's name.
func InvoiceWithClient(t *testing.T) *model.Model {
	t.Helper()
	m := model.New("invoice")
	m.AddField("name")
	_, err := m.HasOne("client_id", Client()).AddTitle()
	require.NoError(t, err)
	m.AddField("amount", model.WithType(model.TypeMoney))
	return m
}

// BillingStore opens a private in-memory store seeded with BillingFixture.
// The store is closed when the test ends.
func BillingStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.LoadFixtures(context.Background(), BillingFixture))
	return s
}
