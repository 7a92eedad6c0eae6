package archive

import (
	"bytes"

	"github.com/xitongsys/parquet-go/source"
)

// memoryFile implements source.ParquetFile over a byte buffer so parquet
// output never touches disk before the S3 upload.
type memoryFile struct {
	buffer *bytes.Buffer
}

func newMemoryFile() *memoryFile {
	return &memoryFile{buffer: &bytes.Buffer{}}
}

func (m *memoryFile) Create(string) (source.ParquetFile, error) {
	return m, nil
}

func (m *memoryFile) Open(string) (source.ParquetFile, error) {
	return m, nil
}

// Seek is write-only sequential; the parquet writer never seeks backwards.
func (m *memoryFile) Seek(int64, int) (int64, error) {
	return int64(m.buffer.Len()), nil
}

func (m *memoryFile) Read(b []byte) (int, error) {
	return m.buffer.Read(b)
}

func (m *memoryFile) Write(b []byte) (int, error) {
	return m.buffer.Write(b)
}

func (m *memoryFile) Close() error {
	return nil
}

func (m *memoryFile) Bytes() []byte {
	return m.buffer.Bytes()
}
