// Package backup saves and restores whole-chip images. Images are CBOR
// encoded and carry the geometry of the chip they were taken from so they are
// never restored onto an incompatible part.
package backup

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/fxamacker/cbor/v2"
)

const chunkSize = 4096

var (
	ErrChecksum = errors.New("backup: image checksum mismatch")
	ErrGeometry = errors.New("backup: image geometry does not match device")
)

// Memory is the part of a chip driver needed to take and apply images.
type Memory interface {
	Capacity() uint32
	PageSize() uint32
	ReadBlock(ctx context.Context, address uint32, buf []byte) (int, error)
	UpdateBlock(ctx context.Context, address uint32, data []byte) (int, error)
}

type Image struct {
	Device   string    `cbor:"1,keyasint"`
	Capacity uint32    `cbor:"2,keyasint"`
	PageSize uint32    `cbor:"3,keyasint"`
	Created  time.Time `cbor:"4,keyasint"`
	Checksum []byte    `cbor:"5,keyasint"`
	Data     []byte    `cbor:"6,keyasint"`
}

func checksum(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// Verify checks the image checksum and that the data covers the capacity.
func (img *Image) Verify() error {
	if uint32(len(img.Data)) != img.Capacity {
		return fmt.Errorf("%w: %d data bytes for capacity %d", ErrGeometry, len(img.Data), img.Capacity)
	}
	sum := checksum(img.Data)
	if string(sum) != string(img.Checksum) {
		return ErrChecksum
	}
	return nil
}

// Take reads the whole device into an image.
func Take(ctx context.Context, device string, mem Memory) (*Image, error) {
	capacity := mem.Capacity()
	data := make([]byte, capacity)
	for offset := uint32(0); offset < capacity; offset += chunkSize {
		end := offset + chunkSize
		if end > capacity {
			end = capacity
		}
		if _, err := mem.ReadBlock(ctx, offset, data[offset:end]); err != nil {
			return nil, fmt.Errorf("backup: could not read %#x: %w", offset, err)
		}
	}
	return &Image{
		Device:   device,
		Capacity: capacity,
		PageSize: mem.PageSize(),
		Created:  time.Now().UTC().Truncate(time.Second),
		Checksum: checksum(data),
		Data:     data,
	}, nil
}

// Save takes an image of mem and writes it to w.
func Save(ctx context.Context, device string, mem Memory, w io.Writer) (*Image, error) {
	img, err := Take(ctx, device, mem)
	if err != nil {
		return nil, err
	}
	if err := cbor.NewEncoder(w).Encode(img); err != nil {
		return nil, fmt.Errorf("backup: could not encode image: %w", err)
	}
	slog.Debug("backup saved", "device", device, "bytes", img.Capacity)
	return img, nil
}

// Load decodes and verifies an image.
func Load(r io.Reader) (*Image, error) {
	var img Image
	if err := cbor.NewDecoder(r).Decode(&img); err != nil {
		return nil, fmt.Errorf("backup: could not decode image: %w", err)
	}
	if err := img.Verify(); err != nil {
		return nil, err
	}
	return &img, nil
}

// Restore writes the image back. Pages that already hold the image content
// are left untouched.
func Restore(ctx context.Context, mem Memory, img *Image) error {
	if err := img.Verify(); err != nil {
		return err
	}
	if img.Capacity != mem.Capacity() || img.PageSize != mem.PageSize() {
		return fmt.Errorf("%w: image %d/%d, device %d/%d", ErrGeometry, img.Capacity, img.PageSize, mem.Capacity(), mem.PageSize())
	}
	for offset := uint32(0); offset < img.Capacity; offset += chunkSize {
		end := offset + chunkSize
		if end > img.Capacity {
			end = img.Capacity
		}
		if _, err := mem.UpdateBlock(ctx, offset, img.Data[offset:end]); err != nil {
			return fmt.Errorf("backup: could not restore %#x: %w", offset, err)
		}
	}
	slog.Debug("backup restored", "device", img.Device, "bytes", img.Capacity)
	return nil
}
