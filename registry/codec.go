package registry

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/fxamacker/cbor/v2"

	"github.com/teranos/capgen/errors"
	"github.com/teranos/capgen/ir"
)

const fingerprintPrefix = "sha256:"

// Marshal renders the registry document for sets. The output has no
// timestamps, so unchanged input gives byte-identical files.
func Marshal(sets []ir.CapabilitySet, generator string) ([]byte, error) {
	sets = normalize(sets)
	fp, err := Fingerprint(sets)
	if err != nil {
		return nil, err
	}

	env := Envelope{
		SchemaVersion:  SchemaVersion,
		Generator:      generator,
		Fingerprint:    fp,
		CapabilitySets: sets,
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(env); err != nil {
		return nil, errors.Wrap(err, "failed to encode registry")
	}
	return buf.Bytes(), nil
}

// Fingerprint hashes the canonical CBOR form of the records. The records go
// through their JSON shape first so the hash covers exactly what is stored.
func Fingerprint(sets []ir.CapabilitySet) (string, error) {
	data, err := json.Marshal(normalize(sets))
	if err != nil {
		return "", errors.Wrap(err, "failed to encode capability sets")
	}
	return fingerprintJSON(data)
}

// fingerprintJSON hashes a stored capability_sets value as written, so
// fields this version does not know about are still covered.
func fingerprintJSON(data []byte) (string, error) {
	var generic interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		return "", errors.Wrap(err, "failed to decode capability sets")
	}

	encMode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return "", errors.Wrap(err, "failed to create CBOR encoder")
	}
	canonical, err := encMode.Marshal(generic)
	if err != nil {
		return "", errors.Wrap(err, "CBOR encoding failed")
	}

	sum := sha256.Sum256(canonical)
	return fingerprintPrefix + hex.EncodeToString(sum[:]), nil
}
