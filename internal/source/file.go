package source

import (
	"fmt"
	"io"
	"os"
)

// ReadBatchFile reads one batch from path. "-" reads stdin.
func ReadBatchFile(path string) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read batch %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("batch %s: %w", path, ErrEmptyPayload)
	}
	return data, nil
}
