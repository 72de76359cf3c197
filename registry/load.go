package registry

import (
	"bytes"
	"encoding/json"
	"io/fs"
	"os"

	"github.com/Masterminds/semver/v3"

	"github.com/teranos/capgen/errors"
	"github.com/teranos/capgen/logger"
)

// Load reads and verifies a registry file: version range, schema, typed
// decode (unknown fields ignored), then fingerprint.
func Load(path string) (*Registry, error) {
	log := logger.ComponentLogger("capgen.registry")

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errors.WithHint(
			errors.MarkAs(errors.Newf("registry not found at %s", path), ErrRegistryNotFound),
			"run `capgen extract` to build the registry first",
		)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read registry %s", path)
	}

	r, err := Decode(data)
	if err != nil {
		return nil, errors.Wrapf(err, "registry %s", path)
	}
	r.path = path

	log.Debugw("Registry loaded",
		logger.FieldPath, path,
		logger.FieldCount, len(r.Sets()),
		"schema_version", r.envelope.SchemaVersion,
	)
	return r, nil
}

// Decode verifies and indexes a registry document held in memory.
func Decode(data []byte) (*Registry, error) {
	var doc interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.MarkAs(errors.Wrap(err, "failed to decode registry"), ErrDecode)
	}
	obj, ok := doc.(map[string]interface{})
	if !ok {
		return nil, errors.MarkAs(errors.New("registry document is not a JSON object"), ErrDecode)
	}

	if err := checkVersion(obj); err != nil {
		return nil, err
	}
	if err := validateDocument(doc); err != nil {
		return nil, err
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.MarkAs(errors.Wrap(err, "failed to decode registry"), ErrDecode)
	}

	r, err := New(env.CapabilitySets)
	if err != nil {
		return nil, err
	}
	r.envelope.SchemaVersion = env.SchemaVersion
	r.envelope.Generator = env.Generator
	r.envelope.Fingerprint = env.Fingerprint

	if env.Fingerprint != "" {
		// Hash the stored value, not the typed records: a newer minor schema
		// may carry fields the records drop
		var raw struct {
			CapabilitySets json.RawMessage `json:"capability_sets"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, errors.MarkAs(errors.Wrap(err, "failed to decode registry"), ErrDecode)
		}
		want, err := fingerprintJSON(raw.CapabilitySets)
		if err != nil {
			return nil, err
		}
		if want != env.Fingerprint {
			return nil, errors.WithHint(
				errors.MarkAs(errors.Newf("fingerprint mismatch: recorded %s, content hashes to %s", env.Fingerprint, want), ErrFingerprintMismatch),
				"the registry was edited after extraction; re-run `capgen extract`",
			)
		}
	}
	return r, nil
}

func checkVersion(obj map[string]interface{}) error {
	raw, present := obj["schema_version"]
	if !present {
		return errors.MarkAs(errors.New("missing field /schema_version"), ErrMissingField)
	}
	s, ok := raw.(string)
	if !ok {
		return errors.MarkAs(errors.Newf("schema_version %v is not a string", raw), ErrSchemaMismatch)
	}

	v, err := semver.NewVersion(s)
	if err != nil {
		return errors.MarkAs(errors.Newf("invalid schema_version %q", s), ErrSchemaMismatch)
	}
	constraint, err := semver.NewConstraint(SupportedVersions)
	if err != nil {
		return errors.Wrapf(err, "invalid version constraint %s", SupportedVersions)
	}
	if !constraint.Check(v) {
		return errors.WithHint(
			errors.MarkAs(errors.Newf("registry schema %s is not supported, this capgen reads %s", s, SupportedVersions), ErrSchemaMismatch),
			"re-run `capgen extract` with this capgen version",
		)
	}
	return nil
}
