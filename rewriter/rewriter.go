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

// Package rewriter applies rewrite patterns to a stencil graph until it
// reaches a fixed point.
//
// Patterns are tried in decreasing benefit order on every operation of
// a worklist. A successful rewrite re-enqueues the operations it
// touched so that follow-up rewrites fire without revisiting the whole
// graph.
package rewriter

import (
	"slices"

	"github.com/gx-org/stencil/base/ordered"
	"github.com/gx-org/stencil/fmterr"
	"github.com/gx-org/stencil/ir"
	"github.com/pkg/errors"
)

// Pattern matches an operation and rewrites the graph around it.
type Pattern interface {
	// Name identifies the pattern in errors.
	Name() string
	// Benefit orders patterns: higher benefits are tried first.
	Benefit() int
	// MatchAndRewrite returns true if the pattern fired on op.
	// A pattern that does not fire must leave the graph untouched.
	MatchAndRewrite(rw *Rewriter, op *ir.Operation) (bool, error)
}

// Rewriter mediates the graph mutations of one pattern application and
// records the operations follow-up rewrites should revisit.
type Rewriter struct {
	fn      *ir.Func
	diags   *Diagnostics
	touched []ir.OpID
}

// Fn returns the function being rewritten.
func (rw *Rewriter) Fn() *ir.Func {
	return rw.fn
}

// Warnf reports a diagnostic that does not stop the rewrite.
func (rw *Rewriter) Warnf(at fmterr.At, format string, a ...any) {
	rw.diags.Warnf(at, format, a...)
}

func (rw *Rewriter) touch(ids ...ir.OpID) {
	rw.touched = append(rw.touched, ids...)
}

func (rw *Rewriter) listen(op *ir.Operation) {
	rw.touch(op.ID())
}

// AtEnd returns a builder inserting at the end of a block.
// Operations it creates are revisited by the driver.
func (rw *Rewriter) AtEnd(blk *ir.Block) *ir.Builder {
	bld := ir.AtEnd(blk)
	bld.Listen = rw.listen
	return bld
}

// AtStart returns a builder inserting at the beginning of a block.
// Operations it creates are revisited by the driver.
func (rw *Rewriter) AtStart(blk *ir.Block) *ir.Builder {
	bld := ir.AtStart(blk)
	bld.Listen = rw.listen
	return bld
}

// Before returns a builder inserting in front of an operation.
// Operations it creates are revisited by the driver.
func (rw *Rewriter) Before(op *ir.Operation) *ir.Builder {
	bld := ir.Before(op)
	bld.Listen = rw.listen
	return bld
}

// ReplaceOp redirects the uses of the results of op to the given values
// and erases op. The consumers are revisited by the driver.
func (rw *Rewriter) ReplaceOp(op *ir.Operation, with ...ir.Value) error {
	for _, res := range op.Results() {
		for _, use := range rw.fn.Uses(res) {
			rw.touch(use.Owner)
		}
	}
	rw.touchOperandDefs(op)
	return rw.fn.ReplaceOp(op, with...)
}

// EraseOp removes op from the graph. The producers of its operands are
// revisited by the driver.
func (rw *Rewriter) EraseOp(op *ir.Operation) error {
	rw.touchOperandDefs(op)
	return rw.fn.EraseOp(op)
}

// MergeBlock appends the operations of src at the end of dst, replacing
// the parameters of src by args. The moved operations are revisited by
// the driver.
func (rw *Rewriter) MergeBlock(src, dst *ir.Block, args []ir.Value) error {
	for op := range src.Operations() {
		rw.touch(op.ID())
	}
	return rw.fn.MergeBlock(src, dst, args)
}

func (rw *Rewriter) touchOperandDefs(op *ir.Operation) {
	for _, operand := range op.Operands() {
		if def := rw.fn.DefiningOp(operand); def != nil {
			rw.touch(def.ID())
		}
	}
}

// budgetFactor bounds the number of worklist pops per operation and
// pattern before the driver gives up on converging.
const budgetFactor = 16

// Apply rewrites the function with the given patterns until none fires.
// Warnings raised by patterns are collected in diags.
func Apply(fn *ir.Func, patterns []Pattern, diags *Diagnostics) error {
	sorted := slices.Clone(patterns)
	slices.SortStableFunc(sorted, func(a, b Pattern) int {
		return b.Benefit() - a.Benefit()
	})
	worklist := ordered.NewSet[ir.OpID]()
	for _, op := range fn.Operations() {
		worklist.Insert(op.ID())
	}
	budget := budgetFactor * (fn.NumOps() + 1) * (len(patterns) + 1)
	steps := 0
	for {
		id, ok := worklist.PopLast()
		if !ok {
			return nil
		}
		steps++
		if steps > budget {
			return errors.Errorf("rewriting %s did not converge after %d steps", fn.Name(), steps)
		}
		op := fn.Op(id)
		if op == nil {
			continue
		}
		for _, pattern := range sorted {
			rw := &Rewriter{fn: fn, diags: diags}
			matched, err := pattern.MatchAndRewrite(rw, op)
			if err != nil {
				return errors.Wrapf(err, "pattern %s failed on %s", pattern.Name(), op.Where())
			}
			if !matched {
				continue
			}
			for _, touched := range rw.touched {
				if fn.Op(touched) != nil {
					worklist.Insert(touched)
				}
			}
			if fn.Op(id) != nil {
				worklist.Insert(id)
			}
			break
		}
	}
}
