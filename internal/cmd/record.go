package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Douglas-Christian/rogue-garmin-bridge-sub000/internal/activity"
	"github.com/Douglas-Christian/rogue-garmin-bridge-sub000/internal/ble"
	"github.com/Douglas-Christian/rogue-garmin-bridge-sub000/internal/config"
	"github.com/Douglas-Christian/rogue-garmin-bridge-sub000/internal/export"
	"github.com/Douglas-Christian/rogue-garmin-bridge-sub000/internal/session"
	"github.com/Douglas-Christian/rogue-garmin-bridge-sub000/internal/storage"
	"github.com/Douglas-Christian/rogue-garmin-bridge-sub000/internal/telemetry"
	applog "github.com/Douglas-Christian/rogue-garmin-bridge-sub000/log"
)

const snapshotInterval = 5 * time.Second

func newRecordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a workout from a fitness machine and write a FIT activity file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecord(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&config.DeviceType, "device", "bike",
		"Machine type: bike or rower")
	cmd.Flags().StringVar(&config.DeviceName, "device-name", "",
		"Only connect to machines whose BLE name starts with this prefix")
	cmd.Flags().BoolVar(&config.Simulate, "simulate", false,
		"Replay a synthetic ride instead of scanning for a machine")
	cmd.Flags().StringVar(&config.ExportFormat, "export-format", "",
		"Also export samples in this format: parquet or csv")
	cmd.Flags().StringVar(&config.RedisAddr, "redis", "",
		"Redis address for live session persistence (empty disables)")
	cmd.Flags().StringVar(&config.RedisPass, "redis-password", "",
		"Redis password")
	cmd.Flags().Float64Var(&config.FTPWatts, "ftp", 0,
		"Athlete FTP in watts")
	cmd.Flags().Float64Var(&config.WeightKG, "weight", 0,
		"Athlete weight in kg")
	cmd.Flags().IntVar(&config.Age, "age", 0,
		"Athlete age in years")
	cmd.Flags().IntVar(&config.RestingHR, "resting-hr", 0,
		"Athlete resting heart rate")
	cmd.Flags().IntVar(&config.MaxHR, "max-hr", 0,
		"Athlete max heart rate")
	return cmd
}

func deviceClassFromConfig() (telemetry.DeviceClass, error) {
	switch strings.ToLower(strings.TrimSpace(config.DeviceType)) {
	case "bike", "cycle", "echo":
		return telemetry.DeviceCycle, nil
	case "rower", "row":
		return telemetry.DeviceRow, nil
	default:
		return 0, fmt.Errorf("unknown device type %q (expected bike|rower)", config.DeviceType)
	}
}

func runRecord(ctx context.Context) error {
	logger := applog.Default()
	class, err := deviceClassFromConfig()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(config.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	var store storage.Store
	if config.RedisAddr != "" {
		rs := storage.NewRedisStore(config.RedisAddr, config.RedisPass)
		if err := rs.Ping(ctx); err != nil {
			return fmt.Errorf("redis at %s: %w", config.RedisAddr, err)
		}
		defer rs.Close()
		store = rs
	} else {
		store = storage.NewMemoryStore()
	}

	profile := session.AthleteProfile{
		FTPWatts:  config.FTPWatts,
		WeightKG:  config.WeightKG,
		Age:       config.Age,
		RestingHR: config.RestingHR,
		MaxHR:     config.MaxHR,
	}
	agg := session.NewAggregator(
		session.WithStore(store),
		session.WithLogger(logger),
		session.WithProfile(profile),
	)
	defer agg.Close()

	var transport ble.Transport
	if config.Simulate {
		transport = ble.NewReplayTransport(class, ble.SimulatedRide(300, 150), time.Second)
	} else {
		transport = ble.NewFTMSTransport(class,
			ble.WithNamePrefix(config.DeviceName),
			ble.WithLogger(logger),
		)
	}

	sessionID, err := agg.Start(class)
	if err != nil {
		return err
	}
	logger.Info("session started",
		zap.String("session_id", sessionID.String()),
		zap.Stringer("device_class", class))

	err = transport.Start(ctx, func(raw []byte) {
		sample, err := telemetry.DecodeFrame(raw, class)
		if err != nil {
			logger.Warn("undecodable frame", zap.Error(err))
			return
		}
		if err := agg.Ingest(sample); err != nil {
			logger.Warn("sample dropped", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("start transport: %w", err)
	}
	defer transport.Close()

	waitForStop(ctx, agg, logger)

	workout, stats, err := agg.End()
	if err != nil {
		return err
	}
	logger.Info("session ended",
		zap.Int("samples", stats.SampleCount),
		zap.Float64("duration_s", stats.Duration),
		zap.Int("counter_anomalies", stats.CounterAnomalies))

	enc := activity.NewEncoder(config.OutputDir, activity.WithLogger(logger))
	path, err := enc.Encode(workout, stats, profile)
	if err != nil {
		return err
	}
	fmt.Printf("activity file: %s\n", path)

	if config.ExportFormat != "" {
		exportPath, err := export.Write(config.OutputDir, workout, config.ExportFormat)
		if err != nil {
			return err
		}
		fmt.Printf("sample export: %s\n", exportPath)
	}
	return nil
}

// waitForStop blocks until SIGINT/SIGTERM or context cancellation, logging a
// live snapshot of the running session at a fixed interval.
func waitForStop(ctx context.Context, agg *session.Aggregator, logger *zap.Logger) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)

	ticker := time.NewTicker(snapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sig:
			logger.Info("stop requested")
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if snap, ok := agg.Snapshot(); ok {
				logger.Info("live",
					zap.Float64("duration_s", snap.Duration),
					zap.Float64("avg_power_w", snap.AvgPower),
					zap.Float64("avg_hr_bpm", snap.AvgHeartRate),
					zap.Float64("distance_m", snap.TotalDistance),
					zap.Int("samples", snap.SampleCount))
			}
		}
	}
}
