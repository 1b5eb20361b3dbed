package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Reference prefixes keep the kinds of references apart in the ledger.
const (
	prefixMatching   = "mb"
	prefixCareer     = "cr"
	prefixInvestment = "inv"
	prefixReferral   = "ref"
)

// MatchingReference computes the ledger reference of a matching bonus.
// Formula: "mb:" + SHA256(participant|cycle)
func MatchingReference(participantID, cycleID string) string {
	return prefixMatching + ":" + hash(participantID, cycleID)
}

// CareerReference computes the ledger reference of a career reward.
// Formula: "cr:" + SHA256(participant|level)
func CareerReference(participantID, levelID string) string {
	return prefixCareer + ":" + hash(participantID, levelID)
}

// InvestmentReference computes the ledger reference of an investment
// principal credit from its external payment reference.
// Formula: "inv:" + SHA256(participant|payment_ref)
func InvestmentReference(participantID, paymentRef string) string {
	return prefixInvestment + ":" + hash(participantID, paymentRef)
}

// ReferralReference computes the ledger reference of a sponsor bonus.
// Formula: "ref:" + SHA256(sponsor|payment_ref)
func ReferralReference(sponsorID, paymentRef string) string {
	return prefixReferral + ":" + hash(sponsorID, paymentRef)
}

// hash returns the hex-encoded SHA256 of parts joined with "|".
func hash(parts ...string) string {
	data := strings.Join(parts, "|")
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

// ShortReference returns the prefix and the first 12 hex chars, for logs.
func ShortReference(ref string) string {
	prefix, digest, ok := strings.Cut(ref, ":")
	if !ok || len(digest) < 12 {
		return ref
	}
	return fmt.Sprintf("%s:%s", prefix, digest[:12])
}
