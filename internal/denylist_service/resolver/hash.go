package resolver

import (
	"bytes"
	"context"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math/bits"
	"strconv"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/autobahn/moderation/internal/denylist_service/domain"
)

const hashSize = 8

// HashFile returns the hex SHA-512 digest of payload.
func (r *Resolver) HashFile(ctx context.Context, payload []byte) (string, error) {
	if len(payload) == 0 {
		return "", fmt.Errorf("%w: empty file", domain.ErrInvalidInput)
	}
	return r.offload(ctx, func() (string, error) {
		sum := sha512.Sum512(payload)
		return hex.EncodeToString(sum[:]), nil
	})
}

// HashImage returns the 64-bit average hash of an image as 16 hex chars.
func (r *Resolver) HashImage(ctx context.Context, payload []byte) (hash, warning string, err error) {
	hash, err = r.offload(ctx, func() (string, error) {
		img, _, err := image.Decode(bytes.NewReader(payload))
		if err != nil {
			return "", fmt.Errorf("%w: decoding image: %v", domain.ErrInvalidInput, err)
		}
		return fmt.Sprintf("%016x", averageHash(img)), nil
	})
	if err != nil {
		return "", "", err
	}

	symbol := string(r.opts.MHashWarnSymbol)
	if strings.Count(hash, symbol) > r.opts.MHashWarnThreshold {
		warning = "The image seems to contain a lot of the same color. This might lead to false positives."
		r.logger.WarnContext(ctx, "Low entropy image hash", "hash", hash, "symbol", symbol)
	}
	return hash, warning, nil
}

type hashResult struct {
	value string
	err   error
}

// offload runs CPU bound work on the bounded hashing pool. The result only
// travels over the channel, so an abandoned worker never races the caller.
func (r *Resolver) offload(ctx context.Context, fn func() (string, error)) (string, error) {
	if err := r.workers.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("waiting for hash worker: %w", err)
	}
	done := make(chan hashResult, 1)
	go func() {
		defer r.workers.Release(1)
		value, err := fn()
		done <- hashResult{value: value, err: err}
	}()
	select {
	case res := <-done:
		return res.value, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// HashesSimilar reports whether two hex image hashes differ in at most
// tolerance bits. Malformed hashes never match.
func HashesSimilar(a, b string, tolerance int) bool {
	x, err := strconv.ParseUint(a, 16, 64)
	if err != nil {
		return false
	}
	y, err := strconv.ParseUint(b, 16, 64)
	if err != nil {
		return false
	}
	return bits.OnesCount64(x^y) <= tolerance
}

// averageHash scales img to 8x8 grayscale and sets one bit per pixel brighter
// than the mean, row-major, first pixel in the most significant bit.
func averageHash(img image.Image) uint64 {
	gray := image.NewGray(image.Rect(0, 0, hashSize, hashSize))
	b := img.Bounds()
	if b.Dx() == hashSize && b.Dy() == hashSize {
		draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	} else {
		draw.CatmullRom.Scale(gray, gray.Bounds(), img, b, draw.Src, nil)
	}

	var sum int
	for _, p := range gray.Pix[:hashSize*hashSize] {
		sum += int(p)
	}
	mean := float64(sum) / float64(hashSize*hashSize)

	var h uint64
	for y := 0; y < hashSize; y++ {
		for x := 0; x < hashSize; x++ {
			h <<= 1
			if float64(gray.GrayAt(x, y).Y) > mean {
				h |= 1
			}
		}
	}
	return h
}
