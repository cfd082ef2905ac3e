package bytecode

// SelectorRisk is one row of the canonical weighted selector table (spec.md
// 4.5): a 4-byte function selector, a human label, and the risk weight it
// contributes to the Security Report's score when found in a contract's
// runtime bytecode.
type SelectorRisk struct {
	Label    string
	Selector [4]byte
	Weight   int
}

// CanonicalSelectors is the fixed, ordered table every static scan checks
// against. Selectors, labels, and weights are the external contract with
// drift detection and must be reproduced exactly, never renamed or reweighed.
var CanonicalSelectors = []SelectorRisk{
	{"blacklist(address)", [4]byte{0xf9, 0xf9, 0x2b, 0xe4}, 50},
	{"pause()", [4]byte{0x84, 0x56, 0xcb, 0x59}, 30},
	{"_pause()", [4]byte{0x2f, 0x2b, 0x38, 0x87}, 30},
	{"enableTrading()", [4]byte{0x8a, 0x8c, 0x52, 0x3c}, 20},
	{"openTrading()", [4]byte{0xc9, 0x04, 0x4b, 0x7d}, 20},
	{"setFee(uint256)", [4]byte{0x69, 0xfe, 0x0e, 0x2d}, 25},
	{"setTaxFeePercent(uint256)", [4]byte{0x06, 0x1c, 0x82, 0xd0}, 25},
	{"setMarketingFee(uint256)", [4]byte{0x23, 0x23, 0xcc, 0x66}, 20},
	{"updateFees(uint256,uint256)", [4]byte{0x37, 0xb8, 0xd8, 0x0f}, 20},
	{"mint(address,uint256)", [4]byte{0x40, 0xc1, 0x0f, 0x19}, 60},
	{"_mint(address,uint256)", [4]byte{0x9c, 0x0f, 0x92, 0x9c}, 60},
	{"removeLiquidity", [4]byte{0x78, 0x26, 0x55, 0x06}, 90},
	{"removeLiquidityETH", [4]byte{0xaf, 0x29, 0x79, 0xeb}, 90},
	{"drain()", [4]byte{0xd0, 0x40, 0x22, 0x0a}, 100},
	{"withdrawETH()", [4]byte{0x47, 0x4c, 0xf5, 0x3d}, 50},
	{"_transfer", [4]byte{0x30, 0xe0, 0x78, 0x9e}, 40},
	{"_beforeTokenTransfer", [4]byte{0x38, 0xd5, 0x2e, 0x0f}, 30},
	{"setMaxTxAmount", [4]byte{0x83, 0x15, 0x18, 0x77}, 20},
}

// OwnerSelector is bytes4(keccak256("owner()")).
var OwnerSelector = [4]byte{0x8d, 0xa5, 0xcb, 0x5b}

// MaxRiskScore is the saturation ceiling the Security Report clamps to.
const MaxRiskScore = 100

// RevertPenalty is added when owner() cannot be resolved: the harness probe
// gave no usable address and the oracle's static call then errors or
// returns fewer than 20 bytes: "+20 on revert" (spec.md 4.5).
const RevertPenalty = 20
