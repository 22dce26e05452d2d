// Copyright 2023 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package digest computes the fingerprints the cache keys off of.
//
// A Digest is a fixed-width 160-bit BLAKE2b value. Hashers feed it delimited,
// labeled segments (Delimiter(label) then Bytes(payload)) so concatenation
// ambiguity between adjacent fields can never produce a collision: "ab"+"c"
// and "a"+"bc" hash differently because the label/length framing differs.
package digest

import (
	"bytes"
	"context"
	"encoding"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/blake2b"
)

// Size is the width, in bytes, of a Digest (160 bits).
const Size = 20

// Digest is a content fingerprint.
type Digest [Size]byte

// IsZero reports whether d is the zero digest.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// String returns the canonical lowercase hex form of d.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// ParseString parses the canonical hex form produced by String.
func ParseString(s string) (Digest, error) {
	var d Digest
	b, err := hex.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("digest: %w", err)
	}
	if len(b) != Size {
		return d, fmt.Errorf("digest: wrong length %d, want %d", len(b), Size)
	}
	copy(d[:], b)
	return d, nil
}

// Hasher accumulates delimited, labeled segments into a single digest.
// It is not safe for concurrent use.
type Hasher struct {
	h interface {
		io.Writer
		Sum(b []byte) []byte
		encoding.BinaryMarshaler
		encoding.BinaryUnmarshaler
	}
}

// NewHasher returns a new, empty Hasher.
func NewHasher() *Hasher {
	h, err := blake2b.New(Size, nil)
	if err != nil {
		// Size is a compile-time constant within blake2b's supported range;
		// this can only fail if that invariant is broken.
		panic(fmt.Sprintf("digest: blake2b.New(%d): %v", Size, err))
	}
	return &Hasher{h: h.(interface {
		io.Writer
		Sum(b []byte) []byte
		encoding.BinaryMarshaler
		encoding.BinaryUnmarshaler
	})}
}

// Delimiter feeds a labeled delimiter into the digest. Every field hashed by
// the common/direct/preprocessor hashers is preceded by one of these so that
// two differently-shaped sequences of fields never collide.
func (h *Hasher) Delimiter(label string) {
	fmt.Fprintf(h.h, "<%s>", label)
}

// Bytes feeds a length-prefixed payload into the digest.
func (h *Hasher) Bytes(payload []byte) {
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(payload)))
	h.h.Write(lenBuf[:])
	h.h.Write(payload)
}

// String feeds a labeled string payload (convenience wrapper over Bytes).
func (h *Hasher) String(s string) {
	h.Bytes([]byte(s))
}

// Field feeds a Delimiter(label) followed by String(value); nearly every
// field the common/direct/preprocessor hashers feed in is shaped this way.
func (h *Hasher) Field(label, value string) {
	h.Delimiter(label)
	h.String(value)
}

// FieldBytes is Field for a raw byte payload.
func (h *Hasher) FieldBytes(label string, value []byte) {
	h.Delimiter(label)
	h.Bytes(value)
}

// Clone returns a copy of h that can be fed further segments independently,
// so a shared prefix (the common hasher's fields) can be reused across the
// direct-mode and preprocessor-mode branches without recomputing it.
func (h *Hasher) Clone() *Hasher {
	state, err := h.h.MarshalBinary()
	if err != nil {
		panic(fmt.Sprintf("digest: Hasher.Clone: %v", err))
	}
	clone := NewHasher()
	if err := clone.h.UnmarshalBinary(state); err != nil {
		panic(fmt.Sprintf("digest: Hasher.Clone: %v", err))
	}
	return clone
}

// Sum returns the Digest of everything fed so far without resetting state.
func (h *Hasher) Sum() Digest {
	var d Digest
	copy(d[:], h.h.Sum(nil))
	return d
}

// Of returns the Digest of a single byte slice, with no delimiter framing.
// The result equals OfFile/OfReader of the same bytes; Store.Set uses it to
// key in-memory content.
func Of(b []byte) Digest {
	h := NewHasher()
	h.h.Write(b)
	return h.Sum()
}

// OfReader reads r to EOF and returns its Digest.
func OfReader(r io.Reader) (Digest, error) {
	h := NewHasher()
	if _, err := io.Copy(h.h, r); err != nil {
		return Digest{}, err
	}
	return h.Sum(), nil
}

// OfFile returns the Digest of a local file's content.
func OfFile(ctx context.Context, fname string) (Digest, error) {
	f, err := os.Open(fname)
	if err != nil {
		return Digest{}, err
	}
	defer f.Close()
	return OfReader(f)
}

// Equal reports whether a and b are the same digest.
func Equal(a, b Digest) bool {
	return bytes.Equal(a[:], b[:])
}
