package banker

// OfferDue reports whether a new offer is due after burnedCount cases
// have been burned (including the one just burned).
func OfferDue(burnedCount int) bool {
	return burnedCount >= 1 && burnedCount <= 3
}

// BurnTriggersOffer is the rule applied when a case is burned: the banker
// calls after the second and third burns only.
func BurnTriggersOffer(burnedCount int) bool {
	return burnedCount == 2 || burnedCount == 3
}
