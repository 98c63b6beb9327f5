package inventory

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestLotQueryLowStock(t *testing.T) {
	limit := decimal.NewFromInt(10)
	sql, args := lotQuery(LotFilter{MaxRemaining: &limit, Category: "Silk"})
	require.Contains(t, sql, "deleted_at IS NULL")
	require.Contains(t, sql, "category = $1")
	require.Contains(t, sql, "total_meters - used_meters <= $2")
	require.Contains(t, sql, "ORDER BY total_meters - used_meters ASC")
	require.Equal(t, []any{"Silk", limit}, args)
}

func TestLotQueryDefaults(t *testing.T) {
	sql, args := lotQuery(LotFilter{IncludeDeleted: true, Limit: 5})
	require.NotContains(t, sql, "WHERE")
	require.Contains(t, sql, "ORDER BY received_at DESC")
	require.Contains(t, sql, "LIMIT $1")
	require.Equal(t, []any{5}, args)
}

func TestStockLotRemaining(t *testing.T) {
	lot := StockLot{TotalMeters: decimal.RequireFromString("50"), UsedMeters: decimal.RequireFromString("12.25")}
	require.True(t, lot.Remaining().Equal(decimal.RequireFromString("37.75")))
}

func TestLotQueryEscapesDealerWildcards(t *testing.T) {
	sql, args := lotQuery(LotFilter{DealerName: "100%_silk"})
	require.Contains(t, sql, `dealer_name ILIKE $1 ESCAPE '\'`)
	require.Equal(t, []any{`%100\%\_silk%`}, args[:1])
}
