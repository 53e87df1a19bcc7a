package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/angelmondragon/lastmile-backend/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no %s migration file found", suffix)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func assertContains(t *testing.T, content string, checks []string) {
	t.Helper()
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestMigrationDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("ValidateDir: %v", err)
	}
}

func TestShipmentMigrationContainsConstraints(t *testing.T) {
	assertContains(t, readMigration(t, "create_shipments"), []string{
		"CREATE TABLE IF NOT EXISTS shipments",
		"CONSTRAINT shipments_order_id_key UNIQUE (order_id)",
		"CONSTRAINT shipments_tracking_id_key UNIQUE (tracking_id)",
		"geography(Point,4326)",
		"CHECK (status <> 'DELIVERED' OR delivered_at IS NOT NULL)",
		"DROP TABLE IF EXISTS shipments",
	})
}

func TestSettlementLedgerMigrationContainsConstraints(t *testing.T) {
	assertContains(t, readMigration(t, "create_settlement_ledger"), []string{
		"CREATE TABLE IF NOT EXISTS platform_wallets",
		"CHECK (balance >= 0)",
		"'00000000-0000-4000-8000-000000000001'",
		"CONSTRAINT agent_earnings_shipment_id_key UNIQUE (shipment_id)",
		"CONSTRAINT seller_settlements_order_id_key UNIQUE (order_id)",
		"CHECK (net_amount = order_amount - platform_fee - tax)",
		"CREATE TABLE IF NOT EXISTS delivery_completions",
		"DROP TABLE IF EXISTS wallet_transactions",
	})
}

func TestDeliveryVerificationMigrationContainsConstraints(t *testing.T) {
	assertContains(t, readMigration(t, "create_delivery_verification"), []string{
		"CREATE TABLE IF NOT EXISTS delivery_otps",
		"idx_delivery_otps_order_created ON delivery_otps (order_id, created_at DESC)",
		"CONSTRAINT delivery_proofs_shipment_id_key UNIQUE (shipment_id)",
		"CONSTRAINT ux_seller_proof_requests_seller_shipment UNIQUE (seller_id, shipment_id)",
	})
}

func TestEnumMigrationMatchesStatuses(t *testing.T) {
	assertContains(t, readMigration(t, "create_extensions_and_enums"), []string{
		"CREATE EXTENSION IF NOT EXISTS postgis",
		"'OUT_FOR_DELIVERY'",
		"'DELIVERY_FAILED'",
		"CREATE TYPE settlement_status AS ENUM ('READY', 'HOLD', 'PAID')",
		"'proof_request_decided'",
	})
}

func TestCreatedMigrationPassesValidation(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Proof Index!")
	if err != nil {
		t.Fatalf("CreateSQLMigration: %v", err)
	}
	if !strings.HasSuffix(path, "_add_proof_index.sql") {
		t.Fatalf("unexpected path %q", path)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("ValidateDir: %v", err)
	}
}

func TestValidateDirRejectsMissingDownSection(t *testing.T) {
	dir := t.TempDir()
	body := "-- +goose Up\nCREATE TABLE x (id int);\n"
	if err := os.WriteFile(filepath.Join(dir, "20260301090000_only_up.sql"), []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := migrate.ValidateDir(dir); err == nil {
		t.Fatal("expected validation error")
	}
}
