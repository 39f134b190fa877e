// Package export writes labeled datasets in columnar form for offline
// analysis.
package export

import (
	"math"

	parquetbuffer "github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/banshee-data/stress.report/internal/model"
)

// datasetRow is one labeled sample. LabelY is NaN for one-dimensional labels.
type datasetRow struct {
	TimestampBeg     float64 `parquet:"name=timestamp_beg, type=DOUBLE"`
	TimestampEnd     float64 `parquet:"name=timestamp_end, type=DOUBLE"`
	GSRMean          float64 `parquet:"name=gsr_mean, type=DOUBLE"`
	GSRLocals        float64 `parquet:"name=gsr_locals, type=DOUBLE"`
	HRMean           float64 `parquet:"name=hr_mean, type=DOUBLE"`
	HRMeanDerivative float64 `parquet:"name=hr_mean_derivative, type=DOUBLE"`
	LabelX           float64 `parquet:"name=label_x, type=DOUBLE"`
	LabelY           float64 `parquet:"name=label_y, type=DOUBLE"`
}

func toRow(r model.Row) datasetRow {
	row := datasetRow{
		TimestampBeg:     r.Sample.TimestampBeg,
		TimestampEnd:     r.Sample.TimestampEnd,
		GSRMean:          r.Sample.GSRMean,
		GSRLocals:        r.Sample.GSRLocals,
		HRMean:           r.Sample.HRMean,
		HRMeanDerivative: r.Sample.HRMeanDerivative,
		LabelX:           math.NaN(),
		LabelY:           math.NaN(),
	}
	if len(r.Targets) > 0 {
		row.LabelX = r.Targets[0]
	}
	if len(r.Targets) > 1 {
		row.LabelY = r.Targets[1]
	}
	return row
}

// DatasetParquet encodes rows as a snappy-compressed parquet file.
func DatasetParquet(rows []model.Row) ([]byte, error) {
	fw := parquetbuffer.NewBufferFile()
	pw, err := writer.NewParquetWriter(fw, new(datasetRow), 4)
	if err != nil {
		return nil, err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, r := range rows {
		if err := pw.Write(toRow(r)); err != nil {
			_ = pw.WriteStop()
			return nil, err
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, err
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}
	return append([]byte(nil), fw.Bytes()...), nil
}
