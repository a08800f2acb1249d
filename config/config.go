// Package config parses the startup environment variables spec.md section 6
// names: CODA_CONSENSUS_MECHANISM and its variant-specific parameters.
// Unrecognized values fail startup with an error naming the offending
// variable, per spec.md 6 and 7's "input-invalid" error taxonomy.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Mechanism identifies which consensus variant a Config selects.
type Mechanism string

const (
	// ProofOfSignature selects the single-designated-proposer variant.
	ProofOfSignature Mechanism = "PROOF_OF_SIGNATURE"
	// ProofOfStake selects the VRF/slot-eligibility variant.
	ProofOfStake Mechanism = "PROOF_OF_STAKE"
)

// Config holds every startup parameter spec.md section 6 names. Fields that
// only apply to one variant are zero-valued when the other variant is
// selected.
type Config struct {
	ConsensusMechanism Mechanism

	ProposalInterval time.Duration

	SlotInterval                     time.Duration
	UnforkableTransitionCount        uint64
	ProbableSlotsPerTransitionCount  uint64

	ExpectedNetworkDelay        time.Duration
	ApproximateNetworkDiameter  uint64
	GenesisStateTimestamp       time.Time
	Coinbase                    uint64
}

// The env* constants name the environment variables FromEnv reads; they are
// unexported, and this package's tests refer to them instead of retyping the
// literal strings.
const (
	envConsensusMechanism             = "CODA_CONSENSUS_MECHANISM"
	envProposalInterval               = "CODA_PROPOSAL_INTERVAL"
	envSlotInterval                   = "CODA_SLOT_INTERVAL"
	envUnforkableTransitionCount      = "CODA_UNFORKABLE_TRANSITION_COUNT"
	envProbableSlotsPerTransitionCount = "CODA_PROBABLE_SLOTS_PER_TRANSITION_COUNT"
	envExpectedNetworkDelay           = "CODA_EXPECTED_NETWORK_DELAY"
	envApproximateNetworkDiameter     = "CODA_APPROXIMATE_NETWORK_DIAMETER"
	envGenesisStateTimestamp          = "CODA_GENESIS_STATE_TIMESTAMP"
	envCoinbase                       = "CODA_COINBASE"
)

// genesisTimestampLayouts are the "conventional date-time" formats
// CODA_GENESIS_STATE_TIMESTAMP is accepted in, tried in order.
var genesisTimestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// FromEnv parses a Config from the process environment, per spec.md section
// 6. It returns an error naming the offending variable on the first
// unrecognized value it encounters; it does not accumulate multiple errors.
func FromEnv() (Config, error) {
	var c Config

	mechanism, err := parseMechanism(os.Getenv(envConsensusMechanism))
	if err != nil {
		return Config{}, err
	}
	c.ConsensusMechanism = mechanism

	if c.ProposalInterval, err = parseDurationMS(envProposalInterval, true); err != nil {
		return Config{}, err
	}
	if c.ExpectedNetworkDelay, err = parseDurationMS(envExpectedNetworkDelay, true); err != nil {
		return Config{}, err
	}
	if c.ApproximateNetworkDiameter, err = parseUint(envApproximateNetworkDiameter, true); err != nil {
		return Config{}, err
	}
	if c.Coinbase, err = parseUint(envCoinbase, true); err != nil {
		return Config{}, err
	}
	if c.GenesisStateTimestamp, err = parseGenesisTimestamp(envGenesisStateTimestamp); err != nil {
		return Config{}, err
	}

	if mechanism == ProofOfStake {
		if c.SlotInterval, err = parseDurationMS(envSlotInterval, true); err != nil {
			return Config{}, err
		}
		if c.UnforkableTransitionCount, err = parseUint(envUnforkableTransitionCount, true); err != nil {
			return Config{}, err
		}
		if c.ProbableSlotsPerTransitionCount, err = parseUint(envProbableSlotsPerTransitionCount, true); err != nil {
			return Config{}, err
		}
	}

	return c, nil
}

func parseMechanism(raw string) (Mechanism, error) {
	switch Mechanism(raw) {
	case ProofOfSignature, ProofOfStake:
		return Mechanism(raw), nil
	default:
		return "", errors.Errorf("%s: unrecognized value %q (want PROOF_OF_SIGNATURE or PROOF_OF_STAKE)", envConsensusMechanism, raw)
	}
}

func parseDurationMS(name string, required bool) (time.Duration, error) {
	raw := os.Getenv(name)
	if raw == "" {
		if required {
			return 0, errors.Errorf("%s: required but not set", name)
		}
		return 0, nil
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ms < 0 {
		return 0, errors.Errorf("%s: unrecognized value %q (want a non-negative integer number of milliseconds)", name, raw)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func parseUint(name string, required bool) (uint64, error) {
	raw := os.Getenv(name)
	if raw == "" {
		if required {
			return 0, errors.Errorf("%s: required but not set", name)
		}
		return 0, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, errors.Errorf("%s: unrecognized value %q (want a non-negative integer)", name, raw)
	}
	return v, nil
}

func parseGenesisTimestamp(name string) (time.Time, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return time.Time{}, errors.Errorf("%s: required but not set", name)
	}
	for _, layout := range genesisTimestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Errorf("%s: unrecognized value %q (want a conventional date-time)", name, raw)
}

// String renders the config for diagnostic logging.
func (c Config) String() string {
	return fmt.Sprintf("Config{mechanism=%s proposalInterval=%s slotInterval=%s coinbase=%d}",
		c.ConsensusMechanism, c.ProposalInterval, c.SlotInterval, c.Coinbase)
}
