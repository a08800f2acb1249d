package stake

import (
	"crypto/ecdsa"
	"math/big"

	"github.com/vechain/go-ecvrf/ecvrf"
)

// vrfSuite is the ECVRF construction the stake variant evaluates slot
// eligibility with. The VRF input is vrfAlpha's (epoch_seed, slot,
// participant_key); the participant's stake is not part of the VRF input and
// enters only through isEligible's stake/total_currency threshold. go-ecvrf's
// Secp256k1Sha256Tai suite is the same ECVRF family the pack's vechain/thor
// dependency manifest pulls in for leader election.
var vrfSuite = ecvrf.NewSecp256k1Sha256Tai()

// VRFProve evaluates the VRF over alpha with sk, returning the output beta
// and its proof pi.
func VRFProve(sk *ecdsa.PrivateKey, alpha []byte) (beta, pi []byte, err error) {
	return vrfSuite.Prove(sk, alpha)
}

// VRFVerify checks that pi is a valid VRF proof of beta over alpha under pk.
func VRFVerify(pk *ecdsa.PublicKey, alpha, pi []byte) (beta []byte, err error) {
	return vrfSuite.Verify(pk, alpha, pi)
}

// vrfOutputAsFraction interprets a VRF output as a fraction in [0, 1) by
// treating it as a big-endian integer over 2^(8*len(beta)), matching
// spec.md 4.4.2's "VRF output, interpreted as a fraction".
func vrfOutputAsFraction(beta []byte) *big.Rat {
	num := new(big.Int).SetBytes(beta)
	den := new(big.Int).Lsh(big.NewInt(1), uint(len(beta))*8)
	return new(big.Rat).SetFrac(num, den)
}

// isEligible reports whether beta, interpreted as a fraction, is below
// stake/totalCurrency (spec.md 4.4.2's eligibility rule).
func isEligible(beta []byte, stake, totalCurrency uint64) bool {
	if totalCurrency == 0 {
		return false
	}
	threshold := new(big.Rat).SetFrac(new(big.Int).SetUint64(stake), new(big.Int).SetUint64(totalCurrency))
	return vrfOutputAsFraction(beta).Cmp(threshold) < 0
}
