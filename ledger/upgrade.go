package ledger

// =============================================================================
// UPGRADE CAP - Maximum pool balance unlocked by member progression
// =============================================================================

// UpgradeTier is a bank upgrade task and the capacity it unlocks.
type UpgradeTier struct {
	Task     string
	Capacity int64
}

// upgradeTiers is ordered by ascending capacity.
var upgradeTiers = [...]UpgradeTier{
	{Task: "BANK_UPGRADE_STARTER", Capacity: 5_000_000},
	{Task: "BANK_UPGRADE_GOLD", Capacity: 100_000_000},
	{Task: "BANK_UPGRADE_DELUXE", Capacity: 250_000_000},
	{Task: "BANK_UPGRADE_SUPER_DELUXE", Capacity: 500_000_000},
	{Task: "BANK_UPGRADE_PREMIER", Capacity: 1_000_000_000},
	{Task: "BANK_UPGRADE_LUXURIOUS", Capacity: 6_000_000_000},
	{Task: "BANK_UPGRADE_PALATIAL", Capacity: 60_000_000_000},
}

var upgradeCapacity = func() map[string]int64 {
	m := make(map[string]int64, len(upgradeTiers))
	for _, tier := range upgradeTiers {
		m[tier.Task] = tier.Capacity
	}
	return m
}()

// UpgradeTiers returns a copy of the upgrade table, ascending.
func UpgradeTiers() []UpgradeTier {
	return append([]UpgradeTier(nil), upgradeTiers[:]...)
}

// MemberProgress is the part of a member's profile the resolver reads.
type MemberProgress struct {
	CompletedTasks []string
}

// MemberCapacity returns the highest capacity unlocked by one member.
func MemberCapacity(progress MemberProgress) (int64, bool) {
	var best int64
	found := false
	for _, task := range progress.CompletedTasks {
		capacity, ok := upgradeCapacity[task]
		if !ok {
			continue
		}
		if !found || capacity > best {
			best = capacity
			found = true
		}
	}
	return best, found
}

// ResolveUpgradeCap returns the highest upgrade unlocked by any member of
// the group. Upgrades are shared, so this is a maximum, not a sum. The
// boolean is false when no member completed a recognized upgrade task.
func ResolveUpgradeCap(members map[MemberID]MemberProgress) (int64, bool) {
	var best int64
	found := false
	for _, progress := range members {
		capacity, ok := MemberCapacity(progress)
		if !ok {
			continue
		}
		if !found || capacity > best {
			best = capacity
			found = true
		}
	}
	return best, found
}
