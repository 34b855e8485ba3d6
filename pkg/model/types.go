package model

import (
	"fmt"
	"math/big"
	"strconv"
)

// NodeID identifies a user slot in the on-chain binary tree.
// Zero is reserved by the contract and means "no link".
type NodeID uint64

// IsZero reports whether the id is the reserved "absent" value
func (id NodeID) IsZero() bool {
	return id == 0
}

func (id NodeID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseNodeID parses a decimal node id. Zero is rejected.
func ParseNodeID(s string) (NodeID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid node id %q: %w", s, err)
	}
	if v == 0 {
		return 0, fmt.Errorf("invalid node id %q: zero is reserved", s)
	}
	return NodeID(v), nil
}

// DirectLinks holds the two child slots of a node as reported by the contract
type DirectLinks struct {
	LeftID  NodeID `json:"left_id" yaml:"left"`
	RightID NodeID `json:"right_id" yaml:"right"`
}

// HasLeft returns true if the left slot is occupied
func (d DirectLinks) HasLeft() bool {
	return d.LeftID > 0
}

// HasRight returns true if the right slot is occupied
func (d DirectLinks) HasRight() bool {
	return d.RightID > 0
}

// HasChildren returns true if either slot is occupied
func (d DirectLinks) HasChildren() bool {
	return d.HasLeft() || d.HasRight()
}

// Branch records which side of its parent a node occupies
type Branch string

const (
	BranchRoot  Branch = "root"
	BranchLeft  Branch = "left"
	BranchRight Branch = "right"
)

// IsValid returns true if the branch is a recognized value
func (b Branch) IsValid() bool {
	switch b {
	case BranchRoot, BranchLeft, BranchRight:
		return true
	}
	return false
}

// Position is a node's coordinate in layout space (before renderer normalization)
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// TreeNode is one materialized node of a build pass
type TreeNode struct {
	ID          NodeID      `json:"id"`
	ParentID    NodeID      `json:"parent_id,omitempty"` // 0 only for the traversal root
	Branch      Branch      `json:"branch"`
	Links       DirectLinks `json:"links"`
	Level       int         `json:"level"`
	HasChildren bool        `json:"has_children"`
	Expanded    bool        `json:"expanded"`
	IsFocus     bool        `json:"is_focus"`
	Position    Position    `json:"position"`
	FetchFailed bool        `json:"fetch_failed,omitempty"`
}

// IsRoot returns true for the traversal root
func (n *TreeNode) IsRoot() bool {
	return n.Branch == BranchRoot
}

// State derives the toggle state of the node
func (n *TreeNode) State() NodeState {
	switch {
	case n.FetchFailed:
		return StateFailed
	case !n.HasChildren:
		return StateLeaf
	case n.Expanded:
		return StateExpanded
	default:
		return StateCollapsed
	}
}

// Validate checks that the node is internally consistent
func (n *TreeNode) Validate() error {
	if n.ID.IsZero() {
		return fmt.Errorf("node id cannot be zero")
	}
	if !n.Branch.IsValid() {
		return fmt.Errorf("node %d: invalid branch: %q", n.ID, n.Branch)
	}
	if n.Branch == BranchRoot && !n.ParentID.IsZero() {
		return fmt.Errorf("node %d: root cannot have a parent (%d)", n.ID, n.ParentID)
	}
	if n.Branch != BranchRoot && n.ParentID.IsZero() {
		return fmt.Errorf("node %d: %s child without parent", n.ID, n.Branch)
	}
	if n.HasChildren != n.Links.HasChildren() {
		return fmt.Errorf("node %d: has_children=%v disagrees with links %+v", n.ID, n.HasChildren, n.Links)
	}
	if n.FetchFailed && n.HasChildren {
		return fmt.Errorf("node %d: failed lookup cannot have children", n.ID)
	}
	return nil
}

// NodeState is the derived per-node toggle state
type NodeState string

const (
	StateCollapsed NodeState = "collapsed"
	StateExpanded  NodeState = "expanded"
	StateLeaf      NodeState = "leaf"
	StateFailed    NodeState = "failed"
)

// Badge returns the short marker shown next to a node
func (s NodeState) Badge() string {
	switch s {
	case StateCollapsed:
		return "+"
	case StateExpanded:
		return "−"
	case StateFailed:
		return "!"
	}
	return ""
}

// UserRecord is the contract's view of a registered user
type UserRecord struct {
	Address             string   `json:"address" yaml:"address"`
	ID                  NodeID   `json:"id" yaml:"id"`
	UplineID            NodeID   `json:"upline_id" yaml:"upline"`
	LeftCount           uint64   `json:"left_count" yaml:"left_count"`
	RightCount          uint64   `json:"right_count" yaml:"right_count"`
	SaveLeft            uint64   `json:"save_left" yaml:"save_left"`
	SaveRight           uint64   `json:"save_right" yaml:"save_right"`
	BalanceCount        uint64   `json:"balance_count" yaml:"balance_count"`
	SpecialBalanceCount uint64   `json:"special_balance_count" yaml:"special_balance_count"`
	TotalMinerRewards   *big.Int `json:"total_miner_rewards" yaml:"-"`
	EntryPrice          *big.Int `json:"entry_price" yaml:"-"`
	IsMiner             bool     `json:"is_miner" yaml:"miner"`
}

// IsRegistered returns false when the contract reported id 0
func (u *UserRecord) IsRegistered() bool {
	return u != nil && !u.ID.IsZero()
}

var weiPerEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// FormatEther renders a wei amount in ether with the given number of decimals.
// A nil amount renders as zero.
func FormatEther(wei *big.Int, decimals int) string {
	if wei == nil {
		wei = new(big.Int)
	}
	r := new(big.Rat).SetFrac(wei, weiPerEther)
	return r.FloatString(decimals)
}

// ParseEther parses a decimal ether amount ("1.5") into wei
func ParseEther(s string) (*big.Int, error) {
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, fmt.Errorf("invalid ether amount %q", s)
	}
	r.Mul(r, new(big.Rat).SetInt(weiPerEther))
	if !r.IsInt() {
		return nil, fmt.Errorf("ether amount %q has more than 18 decimals", s)
	}
	return new(big.Int).Set(r.Num()), nil
}
