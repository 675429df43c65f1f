// Package grftest builds GRF archives for tests.
package grftest

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"os"

	"github.com/Faultbox/geomc/pkg/encoding"
	"github.com/Faultbox/geomc/pkg/grf"
)

// File is one archive entry.
type File struct {
	Name      string // UTF-8; stored as EUC-KR
	Data      []byte
	Stored    bool // keep uncompressed
	Encrypted bool // set the encryption flag; data is not actually encrypted
	Dir       bool // directory entry without data
}

// Build returns a version 0x200 GRF holding files.
func Build(files ...File) []byte {
	var body, table bytes.Buffer
	for _, f := range files {
		packed := f.Data
		if !f.Stored && !f.Dir {
			packed = deflate(f.Data)
		}
		aligned := (len(packed) + 7) &^ 7
		offset := body.Len()
		body.Write(packed)
		body.Write(make([]byte, aligned-len(packed)))

		var flags uint8
		switch {
		case f.Dir:
		case f.Encrypted:
			flags = grf.FlagFile | 0x02
		default:
			flags = grf.FlagFile
		}

		table.Write(encoding.UTF8ToEUCKR(f.Name))
		table.WriteByte(0)
		binary.Write(&table, binary.LittleEndian, []uint32{uint32(len(packed)), uint32(aligned), uint32(len(f.Data))})
		table.WriteByte(flags)
		binary.Write(&table, binary.LittleEndian, uint32(offset))
	}

	var out bytes.Buffer
	header := grf.Header{
		TableOffset: uint32(body.Len()),
		FileCount:   uint32(len(files) + 7),
		Version:     0x200,
	}
	copy(header.Magic[:], "Master of Magic")
	binary.Write(&out, binary.LittleEndian, header)
	out.Write(body.Bytes())

	packedTable := deflate(table.Bytes())
	binary.Write(&out, binary.LittleEndian, []uint32{uint32(len(packedTable)), uint32(table.Len())})
	out.Write(packedTable)
	return out.Bytes()
}

// WriteFile writes a GRF holding files to path.
func WriteFile(path string, files ...File) error {
	return os.WriteFile(path, Build(files...), 0644)
}

func deflate(data []byte) []byte {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	w.Write(data)
	w.Close()
	return buf.Bytes()
}
