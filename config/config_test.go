package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setEnv(t *testing.T, values map[string]string) {
	t.Helper()
	for k, v := range values {
		require.NoError(t, os.Setenv(k, v))
	}
	t.Cleanup(func() {
		for k := range values {
			os.Unsetenv(k)
		}
	})
}

func validSignatureEnv() map[string]string {
	return map[string]string{
		envConsensusMechanism:         "PROOF_OF_SIGNATURE",
		envProposalInterval:           "5000",
		envExpectedNetworkDelay:       "1000",
		envApproximateNetworkDiameter: "3",
		envCoinbase:                   "1000000",
		envGenesisStateTimestamp:      "2024-01-01T00:00:00Z",
	}
}

func TestFromEnvParsesValidSignatureConfig(t *testing.T) {
	setEnv(t, validSignatureEnv())

	c, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ProofOfSignature, c.ConsensusMechanism)
	assert.Equal(t, 5*time.Second, c.ProposalInterval)
	assert.EqualValues(t, 1_000_000, c.Coinbase)
}

func TestFromEnvRequiresStakeOnlyFieldsForStake(t *testing.T) {
	env := validSignatureEnv()
	env[envConsensusMechanism] = "PROOF_OF_STAKE"
	setEnv(t, env)

	_, err := FromEnv()
	assert.Error(t, err, "FromEnv should reject PROOF_OF_STAKE without CODA_SLOT_INTERVAL and friends")
}

func TestFromEnvParsesValidStakeConfig(t *testing.T) {
	env := validSignatureEnv()
	env[envConsensusMechanism] = "PROOF_OF_STAKE"
	env[envSlotInterval] = "2000"
	env[envUnforkableTransitionCount] = "5"
	env[envProbableSlotsPerTransitionCount] = "3"
	setEnv(t, env)

	c, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, c.SlotInterval)
	assert.EqualValues(t, 5, c.UnforkableTransitionCount)
}

func TestFromEnvRejectsUnrecognizedMechanism(t *testing.T) {
	env := validSignatureEnv()
	env[envConsensusMechanism] = "PROOF_OF_VIBES"
	setEnv(t, env)

	_, err := FromEnv()
	require.Error(t, err, "FromEnv should reject an unrecognized CODA_CONSENSUS_MECHANISM")
	assert.Contains(t, err.Error(), envConsensusMechanism, "error should name the offending variable")
}

func TestFromEnvRejectsNonIntegerDuration(t *testing.T) {
	env := validSignatureEnv()
	env[envProposalInterval] = "soon"
	setEnv(t, env)

	_, err := FromEnv()
	assert.Error(t, err, "FromEnv should reject a non-integer CODA_PROPOSAL_INTERVAL")
}

func TestFromEnvRejectsUnparsableGenesisTimestamp(t *testing.T) {
	env := validSignatureEnv()
	env[envGenesisStateTimestamp] = "not-a-date"
	setEnv(t, env)

	_, err := FromEnv()
	assert.Error(t, err, "FromEnv should reject an unparsable CODA_GENESIS_STATE_TIMESTAMP")
}

func TestFromEnvAcceptsAlternateGenesisTimestampLayout(t *testing.T) {
	env := validSignatureEnv()
	env[envGenesisStateTimestamp] = "2024-01-01 00:00:00"
	setEnv(t, env)

	_, err := FromEnv()
	assert.NoError(t, err, "FromEnv should accept the space-separated date-time layout")
}

func TestFromEnvRejectsMissingRequiredVariable(t *testing.T) {
	env := validSignatureEnv()
	delete(env, envCoinbase)
	setEnv(t, env)

	_, err := FromEnv()
	assert.Error(t, err, "FromEnv should reject a missing required CODA_COINBASE")
}
