package domain

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"hash"
	"sort"
)

// Fingerprint returns a stable hash identifying the semantic content of the
// request: its parts in order plus its canonicalized generation parameters.
// The provider override and the stream flag are excluded, so a cached answer
// is reused regardless of which provider produced it.
//
// Canonicalization rules: each part is framed as modality, MIME tag and
// payload bytes with length prefixes (so adjacent fields cannot collide);
// params are serialized as sorted key/value pairs with values encoded via
// encoding/json, which sorts nested map keys and renders numbers in a stable
// form.
func (r *CanonicalRequest) Fingerprint() string {
	h := sha256.New()

	for _, p := range r.Parts {
		writeFrame(h, []byte(p.Modality))
		writeFrame(h, []byte(p.MIME))
		if p.Modality == ModalityText {
			writeFrame(h, []byte(p.Text))
		} else {
			writeFrame(h, p.Data)
		}
	}

	keys := make([]string, 0, len(r.Params))
	for k := range r.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeFrame(h, []byte(k))
		// Marshal errors only occur for unserializable values (channels,
		// funcs), which never appear in decoded requests; fall back to an
		// empty frame so the fingerprint stays total.
		v, err := json.Marshal(r.Params[k])
		if err != nil {
			v = nil
		}
		writeFrame(h, v)
	}

	return hex.EncodeToString(h.Sum(nil))
}

func writeFrame(h hash.Hash, b []byte) {
	var length [8]byte
	binary.BigEndian.PutUint64(length[:], uint64(len(b)))
	h.Write(length[:])
	h.Write(b)
}
