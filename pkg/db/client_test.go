package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testModel struct {
	ID   int
	Name string `gorm:"uniqueIndex"`
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&testModel{}))
	return conn
}

func countRows(t *testing.T, conn *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, conn.Model(&testModel{}).Count(&n).Error)
	return n
}

func TestWithTx(t *testing.T) {
	conn := newTestDB(t)
	client := Wrap(conn)

	require.NoError(t, client.WithTx(t.Context(), func(tx *gorm.DB) error {
		return tx.Create(&testModel{Name: "committed"}).Error
	}))
	require.EqualValues(t, 1, countRows(t, conn))

	boom := errors.New("boom")
	err := client.WithTx(t.Context(), func(tx *gorm.DB) error {
		require.NoError(t, tx.Create(&testModel{Name: "rolled back"}).Error)
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.EqualValues(t, 1, countRows(t, conn))

	require.Panics(t, func() {
		_ = client.WithTx(t.Context(), func(tx *gorm.DB) error {
			require.NoError(t, tx.Create(&testModel{Name: "panicked"}).Error)
			panic("kaboom")
		})
	})
	require.EqualValues(t, 1, countRows(t, conn))
}

func TestPingAndCollector(t *testing.T) {
	client := Wrap(newTestDB(t))
	require.NoError(t, client.Ping(t.Context()))

	reg := prometheus.NewRegistry()
	require.NoError(t, client.RegisterMetrics(reg))
	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "seller_settlements_order_id_key"}
	wrapped := fmt.Errorf("insert settlement: %w", pgErr)

	cases := []struct {
		name       string
		err        error
		constraint string
		want       bool
	}{
		{"pgx any constraint", wrapped, "", true},
		{"pgx matching constraint", wrapped, "seller_settlements_order_id_key", true},
		{"pgx other constraint", wrapped, "agent_earnings_shipment_id_key", false},
		{"pgx foreign key", &pgconn.PgError{Code: "23503"}, "", false},
		{"lib/pq", &pq.Error{Code: "23505", Constraint: "agent_earnings_shipment_id_key"}, "agent_earnings_shipment_id_key", true},
		{"lib/pq other constraint", &pq.Error{Code: "23505", Constraint: "x"}, "agent_earnings_shipment_id_key", false},
		{"sqlite", errors.New("UNIQUE constraint failed: seller_settlements.order_id"), "seller_settlements_order_id_key", true},
		{"unrelated", errors.New("connection refused"), "", false},
		{"nil", nil, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, IsUniqueViolation(tc.err, tc.constraint))
		})
	}
}

func TestUniqueViolationFromSQLite(t *testing.T) {
	conn := newTestDB(t)
	require.NoError(t, conn.Create(&testModel{Name: "A"}).Error)
	require.True(t, IsUniqueViolation(conn.Create(&testModel{Name: "A"}).Error, ""))
}
