package migrations

import (
	"strings"
	"testing"

	"github.com/pocketbase/pocketbase/tests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureSchema_Idempotent(t *testing.T) {
	app, err := tests.NewTestApp()
	require.NoError(t, err)
	defer app.Cleanup()

	require.NoError(t, EnsureSchema(app))
	require.NoError(t, EnsureSchema(app))

	listings, err := app.FindCollectionByNameOrId(CollectionListings)
	require.NoError(t, err)
	assert.NotNil(t, listings.Fields.GetByName("revision"))

	unique := false
	for _, idx := range listings.Indexes {
		if strings.Contains(idx, "UNIQUE") && strings.Contains(idx, "idx_listings_ticket") {
			unique = true
		}
	}
	assert.True(t, unique, "listings must be unique per ticket")

	users, err := app.FindCollectionByNameOrId(CollectionUsers)
	require.NoError(t, err)
	assert.NotNil(t, users.Fields.GetByName("role"))
}

func TestDropSchema(t *testing.T) {
	app, err := tests.NewTestApp()
	require.NoError(t, err)
	defer app.Cleanup()

	require.NoError(t, EnsureSchema(app))
	require.NoError(t, DropSchema(app))

	for _, name := range []string{CollectionTickets, CollectionListings, CollectionTransactions} {
		_, err := app.FindCollectionByNameOrId(name)
		assert.Error(t, err, name)
	}
}
