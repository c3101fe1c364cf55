package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestOperationAndTableFromSQL(t *testing.T) {
	cases := []struct {
		sql   string
		op    string
		table string
	}{
		{sql: "SELECT id FROM licenses WHERE license_key = ?", op: "SELECT", table: "licenses"},
		{sql: "INSERT INTO license_activations (id) VALUES (?)", op: "INSERT", table: "license_activations"},
		{sql: "UPDATE \"licenses\" SET status = ?", op: "UPDATE", table: "licenses"},
		{sql: "WITH x AS (SELECT 1) DELETE FROM audit_logs", op: "SELECT", table: "audit_logs"},
		{sql: "", op: "UNKNOWN", table: ""},
	}
	for _, tc := range cases {
		if got := operationFromSQL(tc.sql); got != tc.op {
			t.Fatalf("operationFromSQL(%q) = %q, want %q", tc.sql, got, tc.op)
		}
		if got := tableFromSQL(tc.sql); got != tc.table {
			t.Fatalf("tableFromSQL(%q) = %q, want %q", tc.sql, got, tc.table)
		}
	}
}

func TestGormLoggerTrace(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	l := NewGormLogger(DefaultGormLoggerConfig())
	query := func() (string, int64) { return "SELECT * FROM licenses WHERE license_key = ?", 0 }
	ctx := context.Background()

	l.Trace(ctx, time.Now(), query, gormlogger.ErrRecordNotFound)
	if n := logs.Len(); n != 0 {
		t.Fatalf("record not found logged %d entries", n)
	}

	l.Trace(ctx, time.Now().Add(-time.Second), query, nil)
	slow := logs.FilterMessage("db.query_slow").All()
	if len(slow) != 1 {
		t.Fatalf("expected one slow query entry, got %d", len(slow))
	}
	if got := slow[0].ContextMap()["table"]; got != "licenses" {
		t.Fatalf("table field = %v", got)
	}

	l.Trace(ctx, time.Now(), query, errors.New("boom"))
	if len(logs.FilterLevelExact(zapcore.ErrorLevel).All()) != 1 {
		t.Fatal("expected the failed query to be logged at error level")
	}

	l.Trace(ctx, time.Now(), query, nil)
	if len(logs.FilterLevelExact(zapcore.DebugLevel).All()) != 0 {
		t.Fatal("fast queries are not logged at warn level")
	}

	NewGormLogger(DebugGormLoggerConfig()).Trace(ctx, time.Now(), query, nil)
	if len(logs.FilterLevelExact(zapcore.DebugLevel).All()) != 1 {
		t.Fatal("debug config logs every statement")
	}
}
