package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Domain prefixes for content-addressed ids. The version suffix leaves room
// for changing the algorithm later.
const (
	DomainEvent     = "tracemon/event/v1"
	DomainFact      = "tracemon/fact/v1"
	DomainViolation = "tracemon/violation/v1"
	DomainSpec      = "tracemon/spec/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data). The null separator
// keeps domain and data from running into each other.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// EventID computes the id of an event within a run. Replaying the same
// trace under the same run id reproduces the same ids.
func EventID(runID string, ev Event) (string, error) {
	args := ev.Args
	if args == nil {
		args = Object{}
	}
	canonical, err := MarshalCanonical(Object{
		"run_id": String(runID),
		"name":   String(ev.Name),
		"args":   args,
		"seq":    Int(ev.Seq),
	})
	if err != nil {
		return "", fmt.Errorf("EventID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainEvent, canonical), nil
}

// FactKey is the structural identity of a fact: two facts with the same
// name and arguments have the same key.
func FactKey(name string, args Object) (string, error) {
	if args == nil {
		args = Object{}
	}
	canonical, err := MarshalCanonical(Object{
		"name": String(name),
		"args": args,
	})
	if err != nil {
		return "", fmt.Errorf("FactKey: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainFact, canonical), nil
}

// ViolationID identifies a violation within a run. The same violation
// recorded twice (e.g. on replay) keeps its id; Index keeps identical
// violations of one event apart.
func ViolationID(runID string, v Violation) (string, error) {
	canonical, err := MarshalCanonical(Object{
		"run_id":  String(runID),
		"monitor": String(v.Monitor),
		"kind":    String(v.Kind),
		"message": String(v.Message),
		"state":   String(v.State),
		"step":    Int(v.Step),
		"seq":     Int(v.Seq),
		"index":   Int(v.Index),
	})
	if err != nil {
		return "", fmt.Errorf("ViolationID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainViolation, canonical), nil
}

// SpecHash fingerprints a set of compiled monitor specs, so a stored run
// can tell whether it is replayed against the same specs. encoding/json
// sorts map keys and Object sorts its own, so the encoding is stable.
func SpecHash(specs []MonitorSpec) (string, error) {
	data, err := json.Marshal(specs)
	if err != nil {
		return "", fmt.Errorf("SpecHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainSpec, data), nil
}

// MustFactKey is FactKey that panics on error. For tests and inputs known
// to be valid.
func MustFactKey(name string, args Object) string {
	key, err := FactKey(name, args)
	if err != nil {
		panic(err)
	}
	return key
}
