// Package config holds the resolved configuration values from the CLI.
package config

var (
	OutputDir    string  // directory for activity and export files
	DeviceType   string  // bike or rower
	DeviceName   string  // BLE name prefix to match while scanning
	Simulate     bool    // replay a synthetic ride instead of scanning
	ExportFormat string  // sample export format, parquet or csv
	RedisAddr    string  // redis address for session persistence, empty disables
	RedisPass    string  // redis password
	LogLevel     string  // zap log level
	FTPWatts     float64 // athlete functional threshold power
	WeightKG     float64 // athlete weight in kg
	Age          int     // athlete age in years
	RestingHR    int     // athlete resting heart rate
	MaxHR        int     // athlete max heart rate
)
