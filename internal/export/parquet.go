// Package export writes perft step results to columnar files for offline
// analysis across runs.
package export

import (
	"fmt"
	"math"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/roach88/perftest/internal/harness"
)

// StepRow is one record's result as stored in Parquet.
type StepRow struct {
	RunID        string `parquet:"name=run_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Seq          int32  `parquet:"name=seq, type=INT32"`
	Line         int32  `parquet:"name=line, type=INT32"`
	Position     string `parquet:"name=position, type=BYTE_ARRAY, convertedtype=UTF8"`
	Depth        int32  `parquet:"name=depth, type=INT32"`
	Expected     int64  `parquet:"name=expected, type=INT64"`
	Actual       *int64 `parquet:"name=actual, type=INT64, repetitiontype=OPTIONAL"`
	Outcome      string `parquet:"name=outcome, type=BYTE_ARRAY, convertedtype=UTF8"`
	Reason       string `parquet:"name=reason, type=BYTE_ARRAY, convertedtype=UTF8"`
	EngineTimeMs *int64 `parquet:"name=engine_time_ms, type=INT64, repetitiontype=OPTIONAL"`
	ElapsedMs    int64  `parquet:"name=elapsed_ms, type=INT64"`
}

// Rows flattens result into Parquet rows in corpus order.
func Rows(result *harness.Result) ([]StepRow, error) {
	rows := make([]StepRow, 0, len(result.Steps))
	for seq, step := range result.Steps {
		expected, err := toInt64(step.Record.Nodes)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", seq, err)
		}
		row := StepRow{
			RunID:        result.RunID,
			Seq:          int32(seq),
			Line:         int32(step.Record.Line),
			Position:     step.Record.Position,
			Depth:        int32(step.Record.Depth),
			Expected:     expected,
			Outcome:      string(step.Outcome),
			Reason:       string(step.Reason),
			EngineTimeMs: step.EngineTimeMs,
			ElapsedMs:    step.Elapsed.Milliseconds(),
		}
		if step.Actual != nil {
			actual, err := toInt64(*step.Actual)
			if err != nil {
				return nil, fmt.Errorf("step %d: %w", seq, err)
			}
			row.Actual = &actual
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// WriteParquet writes the steps of result to a Snappy-compressed Parquet
// file at path, replacing any existing file.
func WriteParquet(path string, result *harness.Result) error {
	rows, err := Rows(result)
	if err != nil {
		return fmt.Errorf("export %s: %w", path, err)
	}

	fileWriter, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("export %s: %w", path, err)
	}
	defer fileWriter.Close()

	parquetWriter, err := writer.NewParquetWriter(fileWriter, new(StepRow), 1)
	if err != nil {
		return fmt.Errorf("export %s: %w", path, err)
	}
	parquetWriter.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, row := range rows {
		if err := parquetWriter.Write(row); err != nil {
			return fmt.Errorf("export %s: %w", path, err)
		}
	}
	if err := parquetWriter.WriteStop(); err != nil {
		return fmt.Errorf("export %s: %w", path, err)
	}
	return fileWriter.Close()
}

// ReadParquet reads every row of a file written by WriteParquet.
func ReadParquet(path string) ([]StepRow, error) {
	fileReader, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	defer fileReader.Close()

	parquetReader, err := reader.NewParquetReader(fileReader, new(StepRow), 1)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	defer parquetReader.ReadStop()

	rows := make([]StepRow, int(parquetReader.GetNumRows()))
	if len(rows) == 0 {
		return rows, nil
	}
	if err := parquetReader.Read(&rows); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return rows, nil
}

func toInt64(n uint64) (int64, error) {
	if n > math.MaxInt64 {
		return 0, fmt.Errorf("node count %d exceeds INT64", n)
	}
	return int64(n), nil
}
