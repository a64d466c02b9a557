package ledger

const (
	// CreditsPro is the credit grant backing a pro purchase.
	CreditsPro = 100
	// CreditsUltra is the credit grant backing an ultra purchase.
	CreditsUltra = 300

	// UpgradeCredits is the credit delta granted on a pro to ultra upgrade.
	UpgradeCredits = CreditsUltra - CreditsPro
	// UpgradeAmount is the price difference of a pro to ultra upgrade in
	// minor currency units.
	UpgradeAmount = 2500
)

// Catalog maps the billing provider's product identifiers to plans. It is an
// injected value object; the two product ids come from deployment
// configuration, never from ambient process state.
type Catalog struct {
	ProProductID   string
	UltraProductID string
}

// PlanForProduct resolves a provider product id to a plan. Unknown ids
// return ("", false); callers drop the event with a logged warning.
func (c Catalog) PlanForProduct(productID string) (Plan, bool) {
	switch productID {
	case "":
		return "", false
	case c.ProProductID:
		return PlanPro, true
	case c.UltraProductID:
		return PlanUltra, true
	}
	return "", false
}

// ProductForPlan is the reverse mapping, used when creating checkouts.
func (c Catalog) ProductForPlan(plan Plan) (string, bool) {
	switch plan {
	case PlanPro:
		return c.ProProductID, c.ProProductID != ""
	case PlanUltra:
		return c.UltraProductID, c.UltraProductID != ""
	}
	return "", false
}

// CreditsForPlan returns the credits granted by a purchase of the plan.
func (c Catalog) CreditsForPlan(plan Plan) int {
	switch plan {
	case PlanPro:
		return CreditsPro
	case PlanUltra:
		return CreditsUltra
	}
	return 0
}

// UpgradeGrant returns the credit and money deltas for a plan change, and
// whether the change is a credit-granting upgrade. Only the pro to ultra
// path the product actually sells grants credits; every other transition is
// plan bookkeeping with a zero-value audit entry. Additional upgrade paths
// (e.g. free to ultra through a subscription update) deliberately fall into
// the no-grant branch pending a product decision.
func (c Catalog) UpgradeGrant(from, to Plan) (credits int, amount int64, ok bool) {
	if from == PlanPro && to == PlanUltra {
		return UpgradeCredits, UpgradeAmount, true
	}
	return 0, 0, false
}
