package audit

import (
	"SentinelQoS/internal/config"
	"SentinelQoS/internal/logger"
	"SentinelQoS/internal/model"
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/sirupsen/logrus"
)

const createTableStatement = `
CREATE TABLE IF NOT EXISTS investigations (
    Timestamp           DateTime64(3),
    FlowID              String,
    ProfileID           String,
    SourceIP            String,
    DestIP              String,
    DestPort            UInt16,
    PacketCount         UInt64,
    AvgPktLen           Float64,
    DurationSeconds     Float64,
    BytesTotal          UInt64,
    SentryCategory      Nullable(String),
    SentryConfidence    Nullable(Float64),
    VanguardCategory    String,
    VanguardConfidence  Float64,
    VanguardExplanation String,
    Simulated           UInt8
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(Timestamp)
ORDER BY (ProfileID, Timestamp);
`

// ClickHouseWriter implements the model.InvestigationWriter interface for ClickHouse.
type ClickHouseWriter struct {
	conn driver.Conn
}

// NewClickHouseWriter connects to ClickHouse and ensures the investigations table exists.
func NewClickHouseWriter(ctx context.Context, cfg config.ClickHouseConfig) (*ClickHouseWriter, error) {
	conn, err := connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	if err := conn.Exec(ctx, createTableStatement); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	logger.WithFields(logrus.Fields{"host": cfg.Host, "database": cfg.Database}).
		Info("Connected to ClickHouse and ensured investigations table exists")

	return &ClickHouseWriter{conn: conn}, nil
}

func connect(ctx context.Context, cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}
	return conn, nil
}

// WriteInvestigations inserts a batch into the investigations table.
func (w *ClickHouseWriter) WriteInvestigations(ctx context.Context, investigations []model.Investigation) error {
	if len(investigations) == 0 {
		return nil
	}

	batch, err := w.conn.PrepareBatch(ctx, "INSERT INTO investigations")
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, inv := range investigations {
		if err := batch.Append(row(inv)...); err != nil {
			return fmt.Errorf("failed to append investigation %s to batch: %w", inv.FlowID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	logger.WithFields(logrus.Fields{"count": len(investigations)}).Debug("Wrote investigations to ClickHouse")
	return nil
}

// Close releases the connection.
func (w *ClickHouseWriter) Close() error {
	return w.conn.Close()
}

// row flattens an investigation into the column order of createTableStatement.
func row(inv model.Investigation) []interface{} {
	var sentryCategory *string
	var sentryConfidence *float64
	if inv.Sentry != nil {
		c := string(inv.Sentry.Category)
		p := inv.Sentry.Confidence
		sentryCategory, sentryConfidence = &c, &p
	}

	var simulated uint8
	if inv.Vanguard.Simulated {
		simulated = 1
	}

	f := inv.Features
	return []interface{}{
		inv.CreatedAt,
		inv.FlowID,
		inv.ProfileID,
		f.SourceIP,
		f.DestIP,
		uint16(f.DestPort),
		uint64(f.PacketCount),
		f.AvgPktLen,
		f.DurationSeconds,
		uint64(f.BytesTotal),
		sentryCategory,
		sentryConfidence,
		string(inv.Vanguard.Category),
		inv.Vanguard.Confidence,
		inv.Vanguard.Explanation,
		simulated,
	}
}
