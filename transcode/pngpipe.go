package transcode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// splitPNGs splits a stream of concatenated PNG images into the single images.
func splitPNGs(data []byte) ([][]byte, error) {
	var images [][]byte
	for off := 0; off < len(data); {
		if !bytes.HasPrefix(data[off:], pngSignature) {
			return nil, fmt.Errorf("invalid png signature at offset %d", off)
		}
		pos := off + len(pngSignature)
		for {
			// length (4) + type (4) + data + crc (4)
			if pos+8 > len(data) {
				return nil, errors.New("truncated png stream")
			}
			length := int(binary.BigEndian.Uint32(data[pos:]))
			typ := string(data[pos+4 : pos+8])
			next := pos + 12 + length
			if length < 0 || next > len(data) {
				return nil, errors.New("truncated png stream")
			}
			pos = next
			if typ == "IEND" {
				break
			}
		}
		images = append(images, data[off:pos])
		off = pos
	}
	return images, nil
}
