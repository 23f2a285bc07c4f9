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

// Package shapeinfer computes the iteration domains of stencil programs.
//
// Domains flow backward through a program: casts and stores declare
// where values are needed, and inference walks the producers in reverse
// order, assigning to each one the union of the domains its consumers
// require. Accesses at an offset grow the requirement accordingly.
package shapeinfer

import (
	"github.com/gx-org/stencil/fmterr"
	"github.com/gx-org/stencil/ir"
)

// Pass computes the iteration domain of every operation of a program.
type Pass struct{}

// Run infers the domains of fn and verifies the result.
// Functions not marked as stencil programs are left untouched.
func (Pass) Run(fn *ir.Func) error {
	if !fn.IsProgram() {
		return nil
	}
	var ops []*ir.Operation
	for op := range fn.Body().Operations() {
		ops = append(ops, op)
	}
	for i := len(ops) - 1; i >= 0; i-- {
		op := ops[i]
		view, ok := ir.AsShapeOp(op)
		if !ok {
			continue
		}
		if _, ok := ir.AsCast(op); ok {
			continue
		}
		if op.NumResults() == 0 {
			continue
		}
		required, ok, err := ir.RequiredBounds(fn, op.Results()...)
		if err != nil {
			return fmterr.Errorf(op, "cannot infer the domain: %v", err)
		}
		if !ok {
			return fmterr.Errorf(op, "cannot infer the domain: no consumer requires the results")
		}
		// A domain declared before inference can only grow.
		if view.HasBounds() {
			required, err = ir.Union(required, view.Bounds())
			if err != nil {
				return fmterr.Errorf(op, "cannot infer the domain: %v", err)
			}
		}
		view.SetBounds(required)
		shape := required.Shape()
		for _, res := range op.Results() {
			grid, ok := fn.ValueType(res).(ir.GridType)
			if !ok {
				continue
			}
			fn.SetValueType(res, grid.WithShape(shape))
			retypeKernelParams(fn, res)
		}
	}
	return ir.Verify(fn)
}

// retypeKernelParams aligns the kernel parameters mirroring val with its
// new type.
func retypeKernelParams(fn *ir.Func, val ir.Value) {
	for _, use := range fn.Uses(val) {
		user := fn.Op(use.Owner)
		if user == nil {
			continue
		}
		apply, ok := ir.AsApply(user)
		if !ok || user.NumBlocks() != 1 {
			continue
		}
		body := apply.Body()
		if use.Index < body.NumParams() {
			fn.SetValueType(body.Param(use.Index), fn.ValueType(val))
		}
	}
}
