package progression

import "time"

// ══════════════════════════════════════════════════════════════════════════════
// COSMETIC STORE
// ══════════════════════════════════════════════════════════════════════════════

// CosmeticKind is the category of a shop entry.
type CosmeticKind string

const (
	CosmeticAvatar CosmeticKind = "avatar"
	CosmeticTheme  CosmeticKind = "theme"

	// CosmeticItem is a shop inventory item. It is owned but never equipped.
	CosmeticItem CosmeticKind = "item"
)

// Valid reports whether k is a known kind.
func (k CosmeticKind) Valid() bool {
	switch k {
	case CosmeticAvatar, CosmeticTheme, CosmeticItem:
		return true
	default:
		return false
	}
}

// Cosmetic is a purchasable catalog entry.
type Cosmetic struct {
	ID            string
	Kind          CosmeticKind
	Name          string
	Cost          int64
	RequiredLevel int
}

// Free reports whether the cosmetic costs nothing.
func (c Cosmetic) Free() bool {
	return c.Cost <= 0
}

// Ownership records a cosmetic owned by a student.
type Ownership struct {
	StudentID   string
	CosmeticID  string
	Kind        CosmeticKind
	PricePaid   int64
	PurchasedAt time.Time
}

// PurchaseAction is what the store must do for a purchase request.
type PurchaseAction string

const (
	// PurchaseEquipOnly - already owned, just equip.
	PurchaseEquipOnly PurchaseAction = "equip_only"

	// PurchaseClaimFree - free item, record ownership and equip.
	PurchaseClaimFree PurchaseAction = "claim_free"

	// PurchaseCharge - charge, record ownership and equip.
	PurchaseCharge PurchaseAction = "charge"
)

// DecidePurchase applies the shop rules in order: owned items are equipped,
// free items are claimed, paid items need enough coins and then a high
// enough level.
func DecidePurchase(s *Student, c Cosmetic, owned bool) (PurchaseAction, error) {
	if owned {
		return PurchaseEquipOnly, nil
	}
	if c.Free() {
		return PurchaseClaimFree, nil
	}
	if s.Coins < c.Cost {
		return "", ErrInsufficientFunds
	}
	if c.RequiredLevel > 0 && s.Level < c.RequiredLevel {
		return "", ErrLevelTooLow
	}
	return PurchaseCharge, nil
}
