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

	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/stencil/ir"
	"github.com/gx-org/stencil/rewriter"
	"github.com/pkg/errors"
)

// mirror removes the extra operands of a combine by completing each
// side with empty result slots standing in for the results only the
// other side produces.
type mirror struct{}

func (mirror) Name() string { return "mirror" }

func (mirror) Benefit() int { return 1 }

func (m mirror) MatchAndRewrite(rw *rewriter.Rewriter, op *ir.Operation) (bool, error) {
	combine, ok := ir.AsCombine(op)
	if !ok || combine.NumExtra() == 0 {
		return false, nil
	}
	lower, upper, ok := applyPair(combine)
	if !ok {
		return false, nil
	}
	if !lower.HasBounds() || !upper.HasBounds() {
		return false, nil
	}
	if _, ok := lower.Ret(); !ok {
		return false, nil
	}
	if _, ok := upper.Ret(); !ok {
		return false, nil
	}
	return m.mirrorExtras(rw, lower, upper, combine)
}

// mirrorExtras rebuilds both applies with empty stores for the extra
// results of the other side and replaces the combine by one without
// extra operands.
func (m mirror) mirrorExtras(rw *rewriter.Rewriter, lower, upper ir.ApplyOp, combine ir.CombineOp) (bool, error) {
	newLower, err := m.addEmptyStores(rw, lower, combine.UpperExt())
	if err != nil {
		return false, err
	}
	newUpper, err := m.addEmptyStores(rw, upper, combine.LowerExt())
	if err != nil {
		return false, err
	}

	numLowerExt := len(combine.LowerExt())
	numUpperExt := len(combine.UpperExt())
	lowerOperands, err := mapResults(lower.Operation(), newLower.Operation(), combine.Lower())
	if err != nil {
		return false, err
	}
	upperOperands, err := mapResults(upper.Operation(), newUpper.Operation(), combine.Upper())
	if err != nil {
		return false, err
	}
	lowerExt, err := mapResults(lower.Operation(), newLower.Operation(), combine.LowerExt())
	if err != nil {
		return false, err
	}
	lowerOperands = append(lowerOperands, lowerExt...)
	upperResults := newUpper.Operation().Results()
	upperOperands = append(upperOperands, upperResults[len(upperResults)-numLowerExt:]...)
	lowerResults := newLower.Operation().Results()
	lowerOperands = append(lowerOperands, lowerResults[len(lowerResults)-numUpperExt:]...)
	upperExt, err := mapResults(upper.Operation(), newUpper.Operation(), combine.UpperExt())
	if err != nil {
		return false, err
	}
	upperOperands = append(upperOperands, upperExt...)

	payload := &ir.Combine{
		Dim:    combine.Dim(),
		Index:  combine.Index(),
		Domain: cloneDomain(combine),
		NLower: len(lowerOperands),
	}
	combineOp := combine.Operation()
	bld := rw.Before(combineOp)
	newCombine := bld.Create(payload, slices.Concat(lowerOperands, upperOperands), slices.Clone(combineOp.ResultTypes()))
	if err := rw.ReplaceOp(combineOp, newCombine.Results()...); err != nil {
		return false, err
	}
	if err := rw.EraseOp(lower.Operation()); err != nil {
		return false, err
	}
	if err := rw.EraseOp(upper.Operation()); err != nil {
		return false, err
	}
	return true, nil
}

// addEmptyStores rebuilds the apply with one additional result per
// extra value, produced by a store of an empty result.
func (mirror) addEmptyStores(rw *rewriter.Rewriter, apply ir.ApplyOp, extras []ir.Value) (ir.ApplyOp, error) {
	fn := rw.Fn()
	op := apply.Operation()
	resultTypes := slices.Clone(op.ResultTypes())
	shape := apply.Bounds().Shape()
	elems := make([]dtype.DataType, len(extras))
	for i, extra := range extras {
		elem, err := ir.ElementTypeOf(fn.ValueType(extra))
		if err != nil {
			return ir.ApplyOp{}, err
		}
		elems[i] = elem
		resultTypes = append(resultTypes, ir.NewTempType(elem, shape, ir.AllocAuto))
	}

	newOp := newApply(rw.Before(op), cloneDomain(apply), slices.Clone(op.Operands()), resultTypes)
	if err := rw.MergeBlock(apply.Body(), newOp.Body(), newOp.Body().Params()); err != nil {
		return ir.ApplyOp{}, err
	}
	ret, ok := newOp.Ret()
	if !ok {
		return ir.ApplyOp{}, errors.Errorf("apply %s has no return", op.Where())
	}
	retOp := ret.Operation()
	bld := rw.Before(retOp)
	operands := slices.Clone(retOp.Operands())
	factor := int(ret.UnrollFactor())
	for _, elem := range elems {
		store := bld.Create(&ir.StoreResult{}, nil, []ir.Type{ir.NewResultType(elem)})
		for range factor {
			operands = append(operands, store.Result(0))
		}
	}
	bld.Create(&ir.Return{Unroll: ret.Unroll().Clone()}, operands, nil)
	if err := rw.EraseOp(retOp); err != nil {
		return ir.ApplyOp{}, err
	}
	return newOp, nil
}

// mapResults translates values produced by one operation into the
// results of another at the same positions.
func mapResults(oldOp, newOp *ir.Operation, values []ir.Value) ([]ir.Value, error) {
	mapped := make([]ir.Value, 0, len(values))
	for _, val := range values {
		i := slices.Index(oldOp.Results(), val)
		if i < 0 {
			return nil, errors.Errorf("value %%%d is not a result of %s", int(val), oldOp.Where())
		}
		mapped = append(mapped, newOp.Result(i))
	}
	return mapped, nil
}
