// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package manifest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/xxh3"

	"infra/cascache/internal/digest"
)

// Error values for on-disk format problems; all are treated identically by
// callers (discard and start empty), but are distinguished for logging.
var (
	ErrWrongMagic   = fmt.Errorf("manifest: bad magic")
	ErrWrongVersion = fmt.Errorf("manifest: unsupported version")
	ErrBadChecksum  = fmt.Errorf("manifest: checksum mismatch")
	ErrCorrupt      = fmt.Errorf("manifest: corrupt body")
)

// Encode serializes m to cascache's on-disk manifest format, compressing
// the body with compr if requested.
func Encode(m *Manifest, compr CompressionType, level int) ([]byte, error) {
	body := encodeBody(m)

	var bodyOut []byte
	switch compr {
	case CompressionNone:
		bodyOut = body
	case CompressionZstd:
		var buf bytes.Buffer
		zw, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
		if err != nil {
			return nil, err
		}
		if _, err := zw.Write(body); err != nil {
			zw.Close()
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		bodyOut = buf.Bytes()
	default:
		return nil, fmt.Errorf("manifest: unknown compression type %d", compr)
	}

	var out bytes.Buffer
	out.WriteString(magic)
	out.WriteByte(version)
	out.WriteByte(byte(compr))
	out.WriteByte(byte(level))
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(body)))
	out.Write(lenBuf[:])
	out.Write(bodyOut)

	checksum := xxh3.Hash(body)
	var sumBuf [8]byte
	binary.BigEndian.PutUint64(sumBuf[:], checksum)
	out.Write(sumBuf[:])

	return out.Bytes(), nil
}

// Decode parses raw into a Manifest, validating magic, version, and
// checksum. Any mismatch returns one of the Err* sentinels above; callers
// treat all of them the same way (discard and start empty).
func Decode(raw []byte) (*Manifest, error) {
	const headerLen = 4 + 1 + 1 + 1 + 8
	if len(raw) < headerLen+8 {
		return nil, ErrCorrupt
	}
	if string(raw[:4]) != magic {
		return nil, ErrWrongMagic
	}
	if raw[4] != version {
		return nil, ErrWrongVersion
	}
	compr := CompressionType(raw[5])
	contentLen := binary.BigEndian.Uint64(raw[7:15])

	bodyOut := raw[headerLen : len(raw)-8]
	sumBytes := raw[len(raw)-8:]

	var body []byte
	switch compr {
	case CompressionNone:
		body = bodyOut
	case CompressionZstd:
		zr, err := zstd.NewReader(bytes.NewReader(bodyOut))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		defer zr.Close()
		b, err := io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		body = b
	default:
		return nil, fmt.Errorf("%w: unknown compression type %d", ErrCorrupt, compr)
	}

	if uint64(len(body)) != contentLen {
		return nil, ErrCorrupt
	}

	wantSum := binary.BigEndian.Uint64(sumBytes)
	gotSum := xxh3.Hash(body)
	if wantSum != gotSum {
		return nil, ErrBadChecksum
	}

	return decodeBody(body)
}

func encodeBody(m *Manifest) []byte {
	var buf bytes.Buffer
	putU32(&buf, uint32(len(m.Paths)))
	for _, p := range m.Paths {
		putU16(&buf, uint16(len(p)))
		buf.WriteString(p)
	}
	putU32(&buf, uint32(len(m.FileInfos)))
	for _, fi := range m.FileInfos {
		putU32(&buf, fi.PathIndex)
		buf.Write(fi.Digest[:])
		putI64(&buf, fi.Size)
		putI64(&buf, fi.Mtime)
		putI64(&buf, fi.Ctime)
	}
	putU32(&buf, uint32(len(m.Results)))
	for _, res := range m.Results {
		putU32(&buf, uint32(len(res.FileInfoIndexes)))
		for _, idx := range res.FileInfoIndexes {
			putU32(&buf, idx)
		}
		buf.Write(res.Name[:])
	}
	return buf.Bytes()
}

func decodeBody(body []byte) (*Manifest, error) {
	r := bytes.NewReader(body)
	m := &Manifest{}

	nPaths, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	m.Paths = make([]string, nPaths)
	for i := range m.Paths {
		pl, err := readU16(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		buf := make([]byte, pl)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		m.Paths[i] = string(buf)
	}

	nFileInfos, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	m.FileInfos = make([]FileInfo, nFileInfos)
	for i := range m.FileInfos {
		pathIndex, err := readU32(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if pathIndex >= nPaths {
			return nil, fmt.Errorf("%w: path_index %d out of range", ErrCorrupt, pathIndex)
		}
		var d digest.Digest
		if _, err := io.ReadFull(r, d[:]); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		size, err := readI64(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		mtime, err := readI64(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		ctime, err := readI64(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		m.FileInfos[i] = FileInfo{PathIndex: pathIndex, Digest: d, Size: size, Mtime: mtime, Ctime: ctime}
	}

	nResults, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	m.Results = make([]Result, nResults)
	for i := range m.Results {
		nIdx, err := readU32(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		idxs := make([]uint32, nIdx)
		for j := range idxs {
			idx, err := readU32(r)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
			}
			if idx >= nFileInfos {
				return nil, fmt.Errorf("%w: file_info_index %d out of range", ErrCorrupt, idx)
			}
			idxs[j] = idx
		}
		var name digest.Digest
		if _, err := io.ReadFull(r, name[:]); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		m.Results[i] = Result{FileInfoIndexes: idxs, Name: name}
	}

	return m, nil
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

func putI64(buf *bytes.Buffer, v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
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
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readI64(r io.Reader) (int64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b[:])), nil
}
