package export

import (
	"fmt"
	"io"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"

	"quantlab/services/indicator"
	"quantlab/services/sim"
)

// FrameRecord converts a frame to an Arrow record: a millisecond timestamp
// column followed by one nullable float64 column per frame column, with
// warm-up cells as nulls. The caller owns the record and must Release it.
func FrameRecord(frame *indicator.Frame, alloc memory.Allocator) (arrow.Record, error) {
	if frame == nil || frame.Len() == 0 {
		return nil, &sim.EmptyDatasetError{}
	}
	if alloc == nil {
		alloc = memory.NewGoAllocator()
	}

	names := frame.Columns()
	fields := make([]arrow.Field, 0, len(names)+1)
	fields = append(fields, arrow.Field{Name: "time", Type: arrow.FixedWidthTypes.Timestamp_ms})
	for _, name := range names {
		fields = append(fields, arrow.Field{Name: name, Type: arrow.PrimitiveTypes.Float64, Nullable: true})
	}
	schema := arrow.NewSchema(fields, nil)

	builder := array.NewRecordBuilder(alloc, schema)
	defer builder.Release()

	times := builder.Field(0).(*array.TimestampBuilder)
	for i := 0; i < frame.Len(); i++ {
		times.Append(arrow.Timestamp(frame.Time(i).UnixMilli()))
	}
	for c, name := range names {
		col := builder.Field(c + 1).(*array.Float64Builder)
		for i := 0; i < frame.Len(); i++ {
			if v, ok := frame.Value(name, i); ok {
				col.Append(v)
			} else {
				col.AppendNull()
			}
		}
	}

	return builder.NewRecord(), nil
}

// EncodeIPC streams frame to w in Arrow IPC format.
func EncodeIPC(w io.Writer, frame *indicator.Frame) error {
	record, err := FrameRecord(frame, nil)
	if err != nil {
		return err
	}
	defer record.Release()

	writer := ipc.NewWriter(w, ipc.WithSchema(record.Schema()))
	if err := writer.Write(record); err != nil {
		writer.Close()
		return fmt.Errorf("export: write arrow record: %w", err)
	}
	return writer.Close()
}

// WriteFrameIPC writes frame to path as an Arrow IPC stream.
func WriteFrameIPC(path string, frame *indicator.Frame) error {
	f, err := createFile(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return EncodeIPC(f, frame)
}
