package wire

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
)

// ErrIntegrityCheck is returned by callers that want an error value for a
// failed FCS check; DeserializeFrame itself reports the failure via its
// boolean return, matching the design's "(map, integrity-ok boolean)"
// contract, but the sentinel is exposed for callers that prefer wrapping it.
var ErrIntegrityCheck = fmt.Errorf("wire: frame integrity check failed")

// MarshalBinary serializes a Frame to bytes: a JSON-encoded header+payload
// body followed by a 4-byte big-endian CRC32 frame check sequence computed
// over that body.
func (f Frame) MarshalBinary() ([]byte, error) {
	body, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal frame: %w", err)
	}
	fcs := crc32.ChecksumIEEE(body)
	out := make([]byte, len(body)+4)
	copy(out, body)
	binary.BigEndian.PutUint32(out[len(body):], fcs)
	return out, nil
}

// DeserializeFrame parses bytes produced by MarshalBinary. It returns
// ok=false, with a zero Frame, whenever the input is too short to hold an
// FCS, the FCS does not match, or the body cannot be decoded. The
// caller (the link layer) must drop such frames silently (I1/P2).
func DeserializeFrame(b []byte) (Frame, bool) {
	if len(b) < 4 {
		return Frame{}, false
	}
	body, trailer := b[:len(b)-4], b[len(b)-4:]
	want := binary.BigEndian.Uint32(trailer)
	if crc32.ChecksumIEEE(body) != want {
		return Frame{}, false
	}
	var f Frame
	if err := json.Unmarshal(body, &f); err != nil {
		return Frame{}, false
	}
	return f, true
}
