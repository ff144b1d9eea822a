package export

import (
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

type sampleParquetRow struct {
	TSUTCISO    string  `parquet:"name=ts_utc_iso, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	ElapsedS    float64 `parquet:"name=elapsed_s, type=DOUBLE"`
	PowerW      float64 `parquet:"name=power_w, type=DOUBLE"`
	HRBPM       float64 `parquet:"name=hr_bpm, type=DOUBLE"`
	CadenceRPM  float64 `parquet:"name=cadence_rpm, type=DOUBLE"`
	SpeedKMH    float64 `parquet:"name=speed_kmh, type=DOUBLE"`
	DistanceM   float64 `parquet:"name=distance_m, type=DOUBLE"`
	EnergyKcal  float64 `parquet:"name=energy_kcal, type=DOUBLE"`
	StrokeCount float64 `parquet:"name=stroke_count, type=DOUBLE"`
	PaceS500M   float64 `parquet:"name=pace_s_500m, type=DOUBLE"`
	ValidPower  bool    `parquet:"name=valid_power, type=BOOLEAN"`
	ValidHR     bool    `parquet:"name=valid_hr, type=BOOLEAN"`
	SampleIndex int64   `parquet:"name=sample_index, type=INT64"`
}

func writeParquet(path string, rows []SampleRow) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return err
	}
	pw, err := writer.NewParquetWriter(fw, new(sampleParquetRow), 4)
	if err != nil {
		_ = fw.Close()
		return err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, r := range rows {
		row := sampleParquetRow{
			TSUTCISO:    r.TSUTCISO,
			ElapsedS:    r.ElapsedS,
			PowerW:      valueOrNaN(r.PowerW),
			HRBPM:       valueOrNaN(r.HRBPM),
			CadenceRPM:  valueOrNaN(r.CadenceRPM),
			SpeedKMH:    valueOrNaN(r.SpeedKMH),
			DistanceM:   valueOrNaN(r.DistanceM),
			EnergyKcal:  valueOrNaN(r.EnergyKcal),
			StrokeCount: valueOrNaN(r.StrokeCount),
			PaceS500M:   valueOrNaN(r.PaceS500M),
			ValidPower:  r.ValidPower,
			ValidHR:     r.ValidHR,
			SampleIndex: int64(r.SampleIndex),
		}
		if err := pw.Write(row); err != nil {
			_ = pw.WriteStop()
			_ = fw.Close()
			return err
		}
	}
	if err := pw.WriteStop(); err != nil {
		_ = fw.Close()
		return err
	}
	return fw.Close()
}
