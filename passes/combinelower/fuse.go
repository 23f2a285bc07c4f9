// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package combinelower

import (
	"slices"

	"github.com/gx-org/stencil/ir"
	"github.com/gx-org/stencil/rewriter"
)

// fuse merges two applies feeding the same side of a combine into a
// single apply producing the results of both.
type fuse struct{}

func (fuse) Name() string { return "fuse" }

func (fuse) Benefit() int { return 1 }

func (f fuse) MatchAndRewrite(rw *rewriter.Rewriter, op *ir.Operation) (bool, error) {
	combine, ok := ir.AsCombine(op)
	if !ok {
		return false, nil
	}
	for _, defs := range [][]*ir.Operation{combine.UpperDefiningOps(), combine.LowerDefiningOps()} {
		if len(defs) < 2 {
			continue
		}
		first, okFirst := ir.AsApply(defs[0])
		second, okSecond := ir.AsApply(defs[1])
		if !okFirst || !okSecond {
			return false, nil
		}
		return f.fuseApplies(rw, first, second, combine)
	}
	return false, nil
}

// fuseApplies replaces two applies by one producing the results of the
// first followed by the results of the second.
func (fuse) fuseApplies(rw *rewriter.Rewriter, first, second ir.ApplyOp, combine ir.CombineOp) (bool, error) {
	if first.HasBounds() && second.HasBounds() && !first.Bounds().Equal(second.Bounds()) {
		rw.Warnf(combine.Operation(), "expected shapes to match")
		return false, nil
	}
	firstRet, ok := first.Ret()
	if !ok {
		return false, nil
	}
	secondRet, ok := second.Ret()
	if !ok {
		return false, nil
	}
	if !firstRet.SameUnroll(secondRet) {
		rw.Warnf(combine.Operation(), "expected matching unroll configurations")
		return false, nil
	}

	firstOp, secondOp := first.Operation(), second.Operation()
	operands := slices.Concat(firstOp.Operands(), secondOp.Operands())
	resultTypes := slices.Concat(firstOp.ResultTypes(), secondOp.ResultTypes())
	fused := newApply(rw.Before(combine.Operation()), cloneDomain(first), operands, resultTypes)
	body := fused.Body()
	params := body.Params()
	if err := rw.MergeBlock(first.Body(), body, params[:firstOp.NumOperands()]); err != nil {
		return false, err
	}
	if err := rw.MergeBlock(second.Body(), body, params[firstOp.NumOperands():]); err != nil {
		return false, err
	}

	retOperands := slices.Concat(firstRet.Operation().Operands(), secondRet.Operation().Operands())
	rw.AtEnd(body).Create(&ir.Return{Unroll: firstRet.Unroll().Clone()}, retOperands, nil)
	if err := rw.EraseOp(firstRet.Operation()); err != nil {
		return false, err
	}
	if err := rw.EraseOp(secondRet.Operation()); err != nil {
		return false, err
	}

	results := fused.Operation().Results()
	if err := rw.ReplaceOp(firstOp, results[:firstOp.NumResults()]...); err != nil {
		return false, err
	}
	if err := rw.ReplaceOp(secondOp, results[firstOp.NumResults():]...); err != nil {
		return false, err
	}
	return true, nil
}
