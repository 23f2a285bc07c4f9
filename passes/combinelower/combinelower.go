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

// Package combinelower lowers combine operations to conditional kernels.
//
// The lowering rewrites the tree of applies feeding a combine into a
// single apply whose kernel branches on the split axis: positions below
// the split coordinate run the lower computation, positions above run
// the upper one. Three rewrite rules cooperate:
//
//   - fuse merges two applies feeding the same side of a combine,
//   - mirror completes both sides with empty result slots so that a
//     combine with extra operands becomes symmetric,
//   - ifElse replaces a symmetric combine and its two applies by one
//     apply selecting the kernel with a conditional.
//
// The pass requires every combine operand to have a single use, which
// domain splitting establishes, and leaves the graph untouched when the
// requirement does not hold.
package combinelower

import (
	"github.com/gx-org/stencil/base/iter"
	"github.com/gx-org/stencil/fmterr"
	"github.com/gx-org/stencil/ir"
	"github.com/gx-org/stencil/rewriter"
)

// Pass lowers the combine operations of stencil programs.
type Pass struct {
	// InternalOnly restricts the lowering to combine trees consumed by
	// an apply, leaving the combines feeding stores in place.
	InternalOnly bool

	diags rewriter.Diagnostics
}

// Run lowers all the combine operations of fn.
// Functions not marked as stencil programs are left untouched.
func (p *Pass) Run(fn *ir.Func) error {
	p.diags = rewriter.Diagnostics{}
	if !fn.IsProgram() {
		return nil
	}
	isCombine := func(op *ir.Operation) bool {
		_, ok := ir.AsCombine(op)
		return ok
	}
	for op := range iter.Filter(isCombine, fn.Operations()) {
		for _, operand := range op.Operands() {
			if !fn.HasOneUse(operand) {
				return fmterr.Errorf(fn, "execute domain splitting before combine op conversion")
			}
		}
	}
	patterns := []rewriter.Pattern{ifElse{}, mirror{}, fuse{}}
	if p.InternalOnly {
		patterns = []rewriter.Pattern{internalIfElse{}}
	}
	return rewriter.Apply(fn, patterns, &p.diags)
}

// Warnings returns the warnings raised by the last run of the pass.
func (p *Pass) Warnings() []error {
	return p.diags.Warnings()
}

// applyPair returns the applies feeding the two sides of the combine.
// It returns false unless each side is produced by exactly one apply.
func applyPair(combine ir.CombineOp) (lower, upper ir.ApplyOp, ok bool) {
	lowerDefs := combine.LowerDefiningOps()
	upperDefs := combine.UpperDefiningOps()
	if len(lowerDefs) != 1 || len(upperDefs) != 1 {
		return ir.ApplyOp{}, ir.ApplyOp{}, false
	}
	lower, okLower := ir.AsApply(lowerDefs[0])
	upper, okUpper := ir.AsApply(upperDefs[0])
	if !okLower || !okUpper {
		return ir.ApplyOp{}, ir.ApplyOp{}, false
	}
	return lower, upper, true
}

// cloneDomain returns a copy of the declared domain of op,
// or nil if the domain has not been declared.
func cloneDomain(op ir.ShapeOp) *ir.Bounds {
	if !op.HasBounds() {
		return nil
	}
	domain := op.Bounds().Clone()
	return &domain
}

// newApply creates an apply with a kernel block whose parameters mirror
// the operands.
func newApply(bld *ir.Builder, domain *ir.Bounds, operands []ir.Value, resultTypes []ir.Type) ir.ApplyOp {
	fn := bld.Block().Func()
	op := bld.Create(&ir.Apply{Domain: domain}, operands, resultTypes)
	body := op.NewBlock()
	for _, operand := range operands {
		body.AddParam(fn.ValueType(operand))
	}
	apply, _ := ir.AsApply(op)
	return apply
}
