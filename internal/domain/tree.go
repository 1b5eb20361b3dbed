package domain

import "github.com/shopspring/decimal"

// Leg is one of the two branches of a binary node.
type Leg string

const (
	LegNone  Leg = ""
	LegLeft  Leg = "left"
	LegRight Leg = "right"
)

// String returns the string representation of Leg.
func (l Leg) String() string {
	return string(l)
}

// IsValid checks if the leg is left or right.
func (l Leg) IsValid() bool {
	return l == LegLeft || l == LegRight
}

// ParseLeg accepts "left", "right" and the empty string.
func ParseLeg(s string) (Leg, bool) {
	switch Leg(s) {
	case LegNone, LegLeft, LegRight:
		return Leg(s), true
	}
	return LegNone, false
}

// NodeKind distinguishes the single unlimited-children root from binary nodes.
type NodeKind string

const (
	NodeKindRoot   NodeKind = "root"
	NodeKindBinary NodeKind = "binary"
)

// TreeNode is the placement and volume state of one participant.
type TreeNode struct {
	ParticipantID string
	Kind          NodeKind
	ParentID      string // empty for the root
	LeftChildID   string // binary nodes only
	RightChildID  string // binary nodes only
	Leg           Leg    // side under the parent; root children may have none

	// Cumulative business volume per leg. Never decreases.
	LeftBusiness  decimal.Decimal
	RightBusiness decimal.Decimal

	// Leftover unmatched amount after the last cycle.
	LeftCarry  decimal.Decimal
	RightCarry decimal.Decimal

	// Business consumed by matching cycles. Never exceeds business.
	LeftMatched  decimal.Decimal
	RightMatched decimal.Decimal

	LeftDownlines  int64
	RightDownlines int64
	DirectChildren int64 // root only

	EarningCap   *decimal.Decimal // optional lifetime cap on matching bonus
	BinaryEarned decimal.Decimal  // matching bonus paid so far

	Version   int64 // optimistic lock, incremented on every update
	CreatedAt int64 // unix ms
	UpdatedAt int64 // unix ms
}

// NewTreeNode returns a zeroed node of the given kind.
func NewTreeNode(participantID string, kind NodeKind) *TreeNode {
	return &TreeNode{
		ParticipantID: participantID,
		Kind:          kind,
		LeftBusiness:  decimal.Zero,
		RightBusiness: decimal.Zero,
		LeftCarry:     decimal.Zero,
		RightCarry:    decimal.Zero,
		LeftMatched:   decimal.Zero,
		RightMatched:  decimal.Zero,
		BinaryEarned:  decimal.Zero,
	}
}

// IsRoot reports whether the node is the root.
func (n *TreeNode) IsRoot() bool {
	return n.Kind == NodeKindRoot
}

// Child returns the child id on the given leg.
func (n *TreeNode) Child(leg Leg) string {
	switch leg {
	case LegLeft:
		return n.LeftChildID
	case LegRight:
		return n.RightChildID
	}
	return ""
}

// SetChild links childID on the given leg.
func (n *TreeNode) SetChild(leg Leg, childID string) {
	switch leg {
	case LegLeft:
		n.LeftChildID = childID
	case LegRight:
		n.RightChildID = childID
	}
}

// AddBusiness adds amount to the business of the given leg.
func (n *TreeNode) AddBusiness(leg Leg, amount decimal.Decimal) {
	switch leg {
	case LegLeft:
		n.LeftBusiness = n.LeftBusiness.Add(amount)
	case LegRight:
		n.RightBusiness = n.RightBusiness.Add(amount)
	}
}

// AddDownline increments the downline count of the given leg.
func (n *TreeNode) AddDownline(leg Leg) {
	switch leg {
	case LegLeft:
		n.LeftDownlines++
	case LegRight:
		n.RightDownlines++
	}
}

// LeftUnmatched is business not yet consumed by a cycle.
func (n *TreeNode) LeftUnmatched() decimal.Decimal {
	return n.LeftBusiness.Sub(n.LeftMatched)
}

// RightUnmatched is business not yet consumed by a cycle.
func (n *TreeNode) RightUnmatched() decimal.Decimal {
	return n.RightBusiness.Sub(n.RightMatched)
}

// HasUnmatched reports whether either leg has business pending a cycle.
func (n *TreeNode) HasUnmatched() bool {
	return n.LeftUnmatched().IsPositive() || n.RightUnmatched().IsPositive()
}

// TotalBusiness is left + right business.
func (n *TreeNode) TotalBusiness() decimal.Decimal {
	return n.LeftBusiness.Add(n.RightBusiness)
}

// Clone returns a deep copy.
func (n *TreeNode) Clone() *TreeNode {
	c := *n
	if n.EarningCap != nil {
		capCopy := *n.EarningCap
		c.EarningCap = &capCopy
	}
	return &c
}
