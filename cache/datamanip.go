package cache

import (
	"bytes"
	"compress/zlib"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Entry is the stored unit of state for one resource key.
// Payload is only ever set together with FetchedAt, by a successful fetch.
type Entry struct {
	FetchedAt time.Time       `json:"fetched_at"`
	Payload   json.RawMessage `json:"payload"`
}

// Age returns how old the entry is at now.
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.FetchedAt)
}

func decodeEntry(rawBytes []byte, compress bool) (*Entry, error) {
	finalBytes := rawBytes
	if compress {
		var err error
		finalBytes, err = decompressZlib(rawBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress cached value: %w", err)
		}
	}
	var finalObject Entry
	if err := json.Unmarshal(finalBytes, &finalObject); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached value: %w", err)
	}
	if finalObject.Payload == nil || finalObject.FetchedAt.IsZero() {
		return nil, ErrNilEntry
	}
	return &finalObject, nil
}

func encodeEntry(entry *Entry, compress bool) (finalData []byte, prepError error) {
	defer func() {
		if r := recover(); r != nil {
			prepError = fmt.Errorf("panic in cache-set: %v", r)
		}
	}()
	rawData, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	if compress {
		return compressZlib(rawData)
	}
	return rawData, nil
}

func compressZlib(input []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(input); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompressZlib(input []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(input))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	var out bytes.Buffer
	if _, err := io.Copy(&out, r); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
