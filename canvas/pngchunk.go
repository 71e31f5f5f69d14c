package canvas

import (
	"encoding/binary"
	"hash/crc32"
	"io"
)

// writeChunk writes one PNG chunk: 4-byte length, 4-byte ASCII type, data,
// then the CRC32 of type+data. This is the low-level primitive the
// streaming PNG canvas uses to emit IHDR/IDAT/IEND by hand instead of
// buffering a whole image.Image for image/png.Encode.
func writeChunk(w io.Writer, chunkType string, data []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}

	crc := crc32.NewIEEE()
	_, _ = crc.Write([]byte(chunkType))
	_, _ = crc.Write(data)

	if _, err := io.WriteString(w, chunkType); err != nil {
		return err
	}
	if len(data) > 0 {
		if _, err := w.Write(data); err != nil {
			return err
		}
	}
	var crcBuf [4]byte
	binary.BigEndian.PutUint32(crcBuf[:], crc.Sum32())
	_, err := w.Write(crcBuf[:])
	return err
}

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

func writeIHDR(w io.Writer, width, height int) error {
	buf := make([]byte, 13)
	binary.BigEndian.PutUint32(buf[0:4], uint32(width))
	binary.BigEndian.PutUint32(buf[4:8], uint32(height))
	buf[8] = 8  // bit depth
	buf[9] = 6  // color type 6: truecolor with alpha (RGBA)
	buf[10] = 0 // compression method
	buf[11] = 0 // filter method
	buf[12] = 0 // interlace method: none
	return writeChunk(w, "IHDR", buf)
}

// idatSink wraps the compressed-data callback zlib.Writer makes on Write and
// Flush into one IDAT chunk per call, which is what turns the zlib stream
// into a valid, incrementally-emitted PNG body.
type idatSink struct{ w io.Writer }

func (s *idatSink) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := writeChunk(s.w, "IDAT", p); err != nil {
		return 0, err
	}
	return len(p), nil
}
