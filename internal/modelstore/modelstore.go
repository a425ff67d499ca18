// Package modelstore persists trained model artifacts on local disk.
//
// Each artifact is stored at <root>/<algorithm>/<id>.model.zst as a fixed
// header followed by the zstd compressed model JSON:
//
//	magic   (8 bytes)  "TSMODEL1"
//	length  (8 bytes)  uncompressed payload size, little endian
//	crc64   (8 bytes)  CRC64-NVME of the uncompressed payload, little endian
//	payload (N bytes)  zstd stream
package modelstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/minio/crc64nvme"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/tsrunner/internal/engine"
)

const (
	magic      = "TSMODEL1"
	headerSize = 24
	extension  = ".model.zst"

	// maxModelSize bounds decompression of a corrupt or hostile artifact.
	maxModelSize = 256 << 20
)

var (
	// ErrModelNotFound is returned when no artifact exists for a key.
	ErrModelNotFound = errors.New("model not found")

	// ErrCorruptModel is returned when an artifact fails header or checksum validation.
	ErrCorruptModel = errors.New("corrupt model artifact")

	// ErrInvalidKey is returned for keys that are not local to the store root.
	ErrInvalidKey = errors.New("invalid model key")
)

// Store saves and loads trained models.
type Store interface {
	// Save writes the model and returns its key.
	Save(ctx context.Context, model *engine.Model) (string, error)
	// Load reads the model stored under key.
	Load(ctx context.Context, key string) (*engine.Model, error)
}

// FileStore keeps models under a fixed root directory.
type FileStore struct {
	root string
}

// NewFileStore creates the root directory if needed.
func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		return nil, errors.New("model store root is required")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create model store root: %w", err)
	}
	return &FileStore{root: root}, nil
}

// Save implements Store. The artifact is written to a temporary file and
// renamed into place so readers never see a partial file.
func (s *FileStore) Save(ctx context.Context, model *engine.Model) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if model == nil {
		return "", errors.New("model is required")
	}
	if model.Algorithm == "" || !filepath.IsLocal(model.Algorithm) || strings.ContainsAny(model.Algorithm, `/\`) {
		return "", fmt.Errorf("%w: algorithm %q", ErrInvalidKey, model.Algorithm)
	}

	payload, err := json.Marshal(model)
	if err != nil {
		return "", fmt.Errorf("failed to encode model: %w", err)
	}

	dir := filepath.Join(s.root, model.Algorithm)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create model directory: %w", err)
	}

	key := filepath.ToSlash(filepath.Join(model.Algorithm, uuid.Must(uuid.NewV7()).String()+extension))
	path := filepath.Join(s.root, filepath.FromSlash(key))

	tmp, err := os.CreateTemp(dir, ".model-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if err := writeArtifact(tmp, payload); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close model file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to move model into place: %w", err)
	}

	log.Debug().
		Str("key", key).
		Int("payload_bytes", len(payload)).
		Msg("Saved model artifact")

	return key, nil
}

// Load implements Store and verifies the checksum.
func (s *FileStore) Load(ctx context.Context, key string) (*engine.Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rel := filepath.FromSlash(key)
	if !filepath.IsLocal(rel) || !strings.HasSuffix(rel, extension) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	f, err := os.Open(filepath.Join(s.root, rel))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrModelNotFound
		}
		return nil, fmt.Errorf("failed to open model: %w", err)
	}
	defer f.Close()

	payload, err := readArtifact(f)
	if err != nil {
		return nil, err
	}

	var model engine.Model
	if err := json.Unmarshal(payload, &model); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptModel, err)
	}
	return &model, nil
}

func writeArtifact(w io.Writer, payload []byte) error {
	header := make([]byte, headerSize)
	copy(header[0:8], magic)
	binary.LittleEndian.PutUint64(header[8:16], uint64(len(payload)))
	binary.LittleEndian.PutUint64(header[16:24], checksum(payload))

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("failed to create encoder: %w", err)
	}
	if _, err := enc.Write(payload); err != nil {
		enc.Close()
		return fmt.Errorf("failed to compress model: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to flush encoder: %w", err)
	}
	return nil
}

func readArtifact(r io.Reader) ([]byte, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("%w: short header", ErrCorruptModel)
	}
	if string(header[0:8]) != magic {
		return nil, fmt.Errorf("%w: bad magic", ErrCorruptModel)
	}
	length := binary.LittleEndian.Uint64(header[8:16])
	storedCRC := binary.LittleEndian.Uint64(header[16:24])
	if length > maxModelSize {
		return nil, fmt.Errorf("%w: payload length %d", ErrCorruptModel, length)
	}

	dec, err := zstd.NewReader(r, zstd.WithDecoderMaxMemory(maxModelSize))
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	defer dec.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(dec, int64(length)+1)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptModel, err)
	}

	payload := buf.Bytes()
	if uint64(len(payload)) != length {
		return nil, fmt.Errorf("%w: length mismatch: stored=%d read=%d", ErrCorruptModel, length, len(payload))
	}
	if computed := checksum(payload); computed != storedCRC {
		return nil, fmt.Errorf("%w: CRC64 mismatch: stored=%x computed=%x", ErrCorruptModel, storedCRC, computed)
	}
	return payload, nil
}

func checksum(data []byte) uint64 {
	h := crc64nvme.New()
	h.Write(data)
	return h.Sum64()
}
