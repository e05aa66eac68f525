package ingest

import (
	"bufio"
	"io"
)

type JSONLIOAdapter struct {
	writer *bufio.Writer
}

func NewJSONLIOAdapter(w io.Writer) *JSONLIOAdapter {
	return &JSONLIOAdapter{
		writer: bufio.NewWriter(w),
	}
}

func (a *JSONLIOAdapter) Input(input []byte) (InputMsg, error) {
	return DeserializeInputMsg(input)
}

func (a *JSONLIOAdapter) Output(msg OutputMsg) ([]byte, error) {
	return SerializeOutputMsg(msg)
}

// Write serializes msg and writes it as one line, flushing immediately so a
// reader on the other end of a pipe sees each reply as it is produced.
func (a *JSONLIOAdapter) Write(msg OutputMsg) error {
	data, err := a.Output(msg)
	if err != nil {
		return err
	}
	if _, err := a.writer.Write(data); err != nil {
		return err
	}
	return a.Flush()
}

func (a *JSONLIOAdapter) Flush() error {
	return a.writer.Flush()
}
