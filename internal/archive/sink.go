package archive

import (
	"bufio"
	"encoding/json"
	"os"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"
)

type jsonlSink struct {
	file *os.File
	buf  *bufio.Writer
	enc  *json.Encoder
	name string
}

func newJSONLSink(path string) (*jsonlSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	buf := bufio.NewWriter(f)
	return &jsonlSink{file: f, buf: buf, enc: json.NewEncoder(buf), name: path}, nil
}

func (s *jsonlSink) write(row Row) error { return s.enc.Encode(row) }

func (s *jsonlSink) close() error {
	if err := s.buf.Flush(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}

func (s *jsonlSink) path() string { return s.name }

type parquetSink struct {
	pw   *writer.ParquetWriter
	fw   source.ParquetFile
	name string
}

func newParquetSink(path string) (*parquetSink, error) {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return nil, err
	}
	pw, err := writer.NewParquetWriter(fw, new(Row), 1)
	if err != nil {
		fw.Close()
		return nil, err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	return &parquetSink{pw: pw, fw: fw, name: path}, nil
}

func (s *parquetSink) write(row Row) error { return s.pw.Write(row) }

func (s *parquetSink) close() error {
	if err := s.pw.WriteStop(); err != nil {
		s.fw.Close()
		return err
	}
	return s.fw.Close()
}

func (s *parquetSink) path() string { return s.name }
