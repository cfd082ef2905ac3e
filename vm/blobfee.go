package vm

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Blob-gas constants for the Cancun fork (EIP-4844), ported from the
// teacher's consensus/misc/eip4844.go. The harness only ever simulates a
// single synthetic block, so there is no fork-schedule lookup here -- every
// simulated block is post-Cancun and uses these fixed parameters.
const (
	minBlobGasPrice            = 1
	blobGasPriceUpdateFraction = 3338477
	targetBlobGasPerBlock      = 3 * 131072 // 3 target blobs * 131072 gas/blob
)

// calcExcessBlobGas implements calc_excess_blob_gas from EIP-4844: the
// harness uses it to give the synthetic header a self-consistent
// excess-blob-gas value derived from the parent it is forked from, since
// simulated calls never carry an actual blob.
func calcExcessBlobGas(parentExcessBlobGas, parentBlobGasUsed *uint64) uint64 {
	var excess, used uint64
	if parentExcessBlobGas != nil {
		excess = *parentExcessBlobGas
	}
	if parentBlobGasUsed != nil {
		used = *parentBlobGasUsed
	}
	if excess+used < targetBlobGasPerBlock {
		return 0
	}
	return excess + used - targetBlobGasPerBlock
}

// fakeExponential approximates factor * e ** (num / denom) via the Taylor
// expansion EIP-4844 specifies.
func fakeExponential(factor, denom *uint256.Int, excessBlobGas uint64) (*uint256.Int, error) {
	numerator := uint256.NewInt(excessBlobGas)
	output := uint256.NewInt(0)
	numeratorAccum := new(uint256.Int)
	_, overflow := numeratorAccum.MulOverflow(factor, denom)
	if overflow {
		return nil, fmt.Errorf("fakeExponential: overflow in factor*denom")
	}
	divisor := new(uint256.Int)
	for i := 1; numeratorAccum.Sign() > 0; i++ {
		_, overflow = output.AddOverflow(output, numeratorAccum)
		if overflow {
			return nil, fmt.Errorf("fakeExponential: overflow accumulating output")
		}
		_, overflow = divisor.MulOverflow(denom, uint256.NewInt(uint64(i)))
		if overflow {
			return nil, fmt.Errorf("fakeExponential: overflow computing divisor")
		}
		_, overflow = numeratorAccum.MulDivOverflow(numeratorAccum, numerator, divisor)
		if overflow {
			return nil, fmt.Errorf("fakeExponential: overflow in mulDiv step")
		}
	}
	return output.Div(output, denom), nil
}

// blobBaseFee returns the per-blob-gas price the synthetic block would
// charge, used only to populate the block context's BlobBaseFee field --
// none of the simulation battery's scenarios submit blob-carrying
// transactions, so this never gates a call's success.
func blobBaseFee(parentExcessBlobGas, parentBlobGasUsed *uint64) (*uint256.Int, error) {
	excess := calcExcessBlobGas(parentExcessBlobGas, parentBlobGasUsed)
	return fakeExponential(uint256.NewInt(minBlobGasPrice), uint256.NewInt(blobGasPriceUpdateFraction), excess)
}
