// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package resultfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
)

// encode serializes bundle to a simple length-prefixed record format:
// exit_code(4B) | stderr_len(4B) stderr | n_blobs(4B) { key_len(2B) key
// blob_len(4B) blob } x n_blobs. Blob keys are written in sorted order for
// a deterministic on-disk byte stream.
func encode(b *Bundle) ([]byte, error) {
	var buf bytes.Buffer
	putU32(&buf, uint32(int32(b.ExitCode)))
	putU32(&buf, uint32(len(b.Stderr)))
	buf.Write(b.Stderr)

	keys := make([]string, 0, len(b.Blobs))
	for k := range b.Blobs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	putU32(&buf, uint32(len(keys)))
	for _, k := range keys {
		putU16(&buf, uint16(len(k)))
		buf.WriteString(k)
		blob := b.Blobs[k]
		putU32(&buf, uint32(len(blob)))
		buf.Write(blob)
	}
	return buf.Bytes(), nil
}

func decode(raw []byte) (*Bundle, error) {
	r := bytes.NewReader(raw)

	exitCode, err := readU32(r)
	if err != nil {
		return nil, err
	}
	stderrLen, err := readU32(r)
	if err != nil {
		return nil, err
	}
	stderr := make([]byte, stderrLen)
	if _, err := io.ReadFull(r, stderr); err != nil {
		return nil, err
	}

	nBlobs, err := readU32(r)
	if err != nil {
		return nil, err
	}
	blobs := make(map[string][]byte, nBlobs)
	for i := uint32(0); i < nBlobs; i++ {
		kLen, err := readU16(r)
		if err != nil {
			return nil, err
		}
		kb := make([]byte, kLen)
		if _, err := io.ReadFull(r, kb); err != nil {
			return nil, err
		}
		bLen, err := readU32(r)
		if err != nil {
			return nil, err
		}
		blob := make([]byte, bLen)
		if _, err := io.ReadFull(r, blob); err != nil {
			return nil, err
		}
		blobs[string(kb)] = blob
	}

	return &Bundle{ExitCode: int(int32(exitCode)), Stderr: stderr, Blobs: blobs}, nil
}

func putU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func putU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func readU16(r io.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

func readU32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, fmt.Errorf("resultfile: %w", err)
	}
	return binary.BigEndian.Uint32(b[:]), nil
}
