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

	"github.com/gx-org/stencil/fmterr"
	"github.com/gx-org/stencil/ir"
	"github.com/gx-org/stencil/rewriter"
	"github.com/pkg/errors"
)

// ifElse replaces a combine without extra operands and the two applies
// feeding it by a single apply whose kernel selects the computation
// with a conditional on the split axis.
type ifElse struct{}

func (ifElse) Name() string { return "if-else" }

func (ifElse) Benefit() int { return 1 }

func (r ifElse) MatchAndRewrite(rw *rewriter.Rewriter, op *ir.Operation) (bool, error) {
	combine, ok := ir.AsCombine(op)
	if !ok || combine.NumExtra() > 0 {
		return false, nil
	}
	lower, upper, ok := applyPair(combine)
	if !ok {
		return false, nil
	}
	return r.lowerCombine(rw, lower, upper, combine)
}

// lowerCombine builds the conditional apply and moves the kernels of
// the lower and upper applies into its two branches.
func (ifElse) lowerCombine(rw *rewriter.Rewriter, lower, upper ir.ApplyOp, combine ir.CombineOp) (bool, error) {
	fn := rw.Fn()
	lowerRet, ok := lower.Ret()
	if !ok {
		return false, nil
	}
	upperRet, ok := upper.Ret()
	if !ok {
		return false, nil
	}
	if !lowerRet.SameUnroll(upperRet) {
		rw.Warnf(combine.Operation(), "expected matching unroll configurations")
		return false, nil
	}

	combineOp := combine.Operation()
	lowerVals, err := permuteRetOperands(lower, combine.Lower(), lowerRet)
	if err != nil {
		return false, err
	}
	upperVals, err := permuteRetOperands(upper, combine.Upper(), upperRet)
	if err != nil {
		return false, err
	}
	condTypes, err := branchTypes(fn, combineOp, lowerVals, upperVals)
	if err != nil {
		return false, err
	}

	lowerOp, upperOp := lower.Operation(), upper.Operation()
	operands := slices.Concat(lowerOp.Operands(), upperOp.Operands())
	domain := cloneDomain(combine)
	fused := newApply(rw.Before(combineOp), domain, operands, slices.Clone(combineOp.ResultTypes()))
	body := fused.Body()

	rank := ir.IndexSize
	if domain != nil {
		rank = domain.Rank()
	}
	bld := rw.AtStart(body)
	pos := bld.Create(&ir.Pos{Dim: combine.Dim(), Offset: ir.Zero(rank)}, nil, []ir.Type{&ir.IndexType{}})
	split := bld.Create(&ir.Constant{Value: combine.Index()}, nil, []ir.Type{&ir.IndexType{}})
	cmp := bld.Create(&ir.Cmp{Pred: ir.ULT}, []ir.Value{pos.Result(0), split.Result(0)}, []ir.Type{ir.BoolType})

	condOp := bld.Create(&ir.Cond{}, []ir.Value{cmp.Result(0)}, condTypes)
	thenBlk := condOp.NewBlock()
	elseBlk := condOp.NewBlock()
	bld.Create(&ir.Return{Unroll: lowerRet.Unroll().Clone()}, condOp.Results(), nil)

	if err := replaceRetByYield(rw, lowerVals, lowerRet); err != nil {
		return false, err
	}
	if err := replaceRetByYield(rw, upperVals, upperRet); err != nil {
		return false, err
	}

	params := body.Params()
	if err := rw.MergeBlock(lower.Body(), thenBlk, params[:lowerOp.NumOperands()]); err != nil {
		return false, err
	}
	if err := rw.MergeBlock(upper.Body(), elseBlk, params[len(params)-upperOp.NumOperands():]); err != nil {
		return false, err
	}

	if err := rw.ReplaceOp(combineOp, fused.Operation().Results()...); err != nil {
		return false, err
	}
	if err := rw.EraseOp(upperOp); err != nil {
		return false, err
	}
	if err := rw.EraseOp(lowerOp); err != nil {
		return false, err
	}
	return true, nil
}

// branchTypes returns the result types of the conditional selecting
// between the two kernels, following the order of the combine results.
// Both kernels must yield the same number of values with the same types.
func branchTypes(fn *ir.Func, at *ir.Operation, lowerVals, upperVals []ir.Value) ([]ir.Type, error) {
	if len(lowerVals) == 0 {
		return nil, fmterr.Internalf(at, "expected applies to return at least one value")
	}
	if len(lowerVals) != len(upperVals) {
		return nil, fmterr.Internalf(at, "expected both applies to return the same types")
	}
	types := make([]ir.Type, len(lowerVals))
	for i, val := range lowerVals {
		types[i] = fn.ValueType(val)
		if !types[i].Equal(fn.ValueType(upperVals[i])) {
			return nil, fmterr.Internalf(at, "expected both applies to return the same types")
		}
	}
	return types, nil
}

// replaceRetByYield replaces the return of an apply by a yield carrying
// the return operands reordered to follow the combine results.
func replaceRetByYield(rw *rewriter.Rewriter, operands []ir.Value, ret ir.ReturnOp) error {
	retOp := ret.Operation()
	rw.Before(retOp).Create(&ir.Yield{}, operands, nil)
	return rw.EraseOp(retOp)
}

// permuteRetOperands reorders the operands of a return to follow the
// order of the combine operands the apply produces. Each result slot
// keeps its block of unrolled values.
func permuteRetOperands(apply ir.ApplyOp, combineOperands []ir.Value, ret ir.ReturnOp) ([]ir.Value, error) {
	factor := int(ret.UnrollFactor())
	retOperands := ret.Operation().Operands()
	permuted := make([]ir.Value, 0, len(retOperands))
	for _, val := range combineOperands {
		i := apply.ResultIndex(val)
		if i < 0 {
			return nil, errors.Errorf("value %%%d is not a result of %s", int(val), apply.Operation().Where())
		}
		permuted = append(permuted, retOperands[i*factor:(i+1)*factor]...)
	}
	return permuted, nil
}

// internalIfElse lowers a combine only when its combine tree computes
// the input of another apply. Combines feeding the program outputs are
// left in place.
type internalIfElse struct {
	ifElse
}

func (internalIfElse) Name() string { return "internal-if-else" }

func (r internalIfElse) MatchAndRewrite(rw *rewriter.Rewriter, op *ir.Operation) (bool, error) {
	combine, ok := ir.AsCombine(op)
	if !ok {
		return false, nil
	}
	fn := rw.Fn()
	root := combine.TreeRoot().Operation()
	feedsApply := false
	for _, res := range root.Results() {
		for _, use := range fn.Uses(res) {
			user := fn.Op(use.Owner)
			if user == nil {
				continue
			}
			if _, ok := ir.AsApply(user); ok {
				feedsApply = true
			}
		}
	}
	if !feedsApply {
		return false, nil
	}
	return r.ifElse.MatchAndRewrite(rw, op)
}
