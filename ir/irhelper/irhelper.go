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

// Package irhelper provides helper functions to build stencil graphs
// programmatically, mostly for tests.
package irhelper

import (
	"github.com/gx-org/backend/dtype"

	"github.com/gx-org/stencil/base/iter"
	"github.com/gx-org/stencil/ir"
)

// Field returns a statically shaped field type.
func Field(elem dtype.DataType, axes ...int64) *ir.FieldType {
	return ir.NewFieldType(elem, axes, ir.AllocAuto)
}

// DynField returns a dynamically shaped field type of the given rank.
func DynField(elem dtype.DataType, rank int) *ir.FieldType {
	axes := make([]int64, rank)
	for i := range axes {
		axes[i] = ir.DynamicSize
	}
	return ir.NewFieldType(elem, axes, ir.AllocAuto)
}

// Temp returns a statically shaped temp type.
func Temp(elem dtype.DataType, axes ...int64) *ir.TempType {
	return ir.NewTempType(elem, axes, ir.AllocAuto)
}

// DynTemp returns a dynamically shaped temp type of the given rank.
func DynTemp(elem dtype.DataType, rank int) *ir.TempType {
	axes := make([]int64, rank)
	for i := range axes {
		axes[i] = ir.DynamicSize
	}
	return ir.NewTempType(elem, axes, ir.AllocAuto)
}

// Bounds returns the domain between two bounds.
func Bounds(lb, ub ir.Index) ir.Bounds {
	return ir.Bounds{LB: lb, UB: ub}
}

// Program returns a function marked as a stencil program,
// with one body parameter per given type.
func Program(name string, params ...ir.Type) *ir.Func {
	fn := ir.NewFunc(name)
	fn.SetProgram(true)
	for _, typ := range params {
		fn.Body().AddParam(typ)
	}
	return fn
}

// Cast asserts the domain of a dynamically shaped field and returns the
// statically shaped result.
func Cast(bld *ir.Builder, field ir.Value, domain ir.Bounds) ir.Value {
	fn := bld.Block().Func()
	from := fn.ValueType(field).(*ir.FieldType)
	op := bld.Create(&ir.Cast{Domain: domain}, []ir.Value{field}, []ir.Type{from.WithShape(domain.Shape())})
	return op.Result(0)
}

// Load reads a field into a temp. Without a domain the temp is
// dynamically shaped until shape inference runs.
func Load(bld *ir.Builder, field ir.Value, domain *ir.Bounds) ir.Value {
	fn := bld.Block().Func()
	from := fn.ValueType(field).(*ir.FieldType)
	var typ ir.Type
	if domain != nil {
		typ = ir.NewTempType(from.ElementType(), domain.Shape(), from.Allocation())
	} else {
		typ = DynTemp(from.ElementType(), from.Rank())
	}
	op := bld.Create(&ir.Load{Domain: domain}, []ir.Value{field}, []ir.Type{typ})
	return op.Result(0)
}

// Store writes a temp to a field over a domain.
func Store(bld *ir.Builder, temp, field ir.Value, domain ir.Bounds) {
	bld.Create(&ir.Store{Domain: &domain}, []ir.Value{temp, field}, nil)
}

// Buffer materializes a temp.
func Buffer(bld *ir.Builder, temp ir.Value, domain *ir.Bounds) ir.Value {
	fn := bld.Block().Func()
	op := bld.Create(&ir.Buffer{Domain: domain}, []ir.Value{temp}, []ir.Type{fn.ValueType(temp)})
	return op.Result(0)
}

// Apply builds an apply running kernel over domain. The kernel callback
// receives a builder into the kernel block and the block parameters,
// and returns the values of the kernel return.
func Apply(bld *ir.Builder, domain *ir.Bounds, operands []ir.Value, results []ir.Type, kernel func(bld *ir.Builder, params []ir.Value) []ir.Value) ir.ApplyOp {
	return applyOp(bld, domain, nil, operands, results, kernel)
}

// ApplyUnroll builds an apply whose kernel is unrolled.
func ApplyUnroll(bld *ir.Builder, domain *ir.Bounds, unroll ir.Index, operands []ir.Value, results []ir.Type, kernel func(bld *ir.Builder, params []ir.Value) []ir.Value) ir.ApplyOp {
	return applyOp(bld, domain, unroll, operands, results, kernel)
}

func applyOp(bld *ir.Builder, domain *ir.Bounds, unroll ir.Index, operands []ir.Value, results []ir.Type, kernel func(bld *ir.Builder, params []ir.Value) []ir.Value) ir.ApplyOp {
	fn := bld.Block().Func()
	op := bld.Create(&ir.Apply{Domain: domain}, operands, results)
	body := op.NewBlock()
	for _, operand := range operands {
		body.AddParam(fn.ValueType(operand))
	}
	kbld := ir.AtEnd(body)
	rets := kernel(kbld, body.Params())
	kbld.Create(&ir.Return{Unroll: unroll}, rets, nil)
	apply, _ := ir.AsApply(op)
	return apply
}

// Access reads a temp at a constant offset and returns the scalar.
func Access(bld *ir.Builder, temp ir.Value, offset ...int64) ir.Value {
	fn := bld.Block().Func()
	elem := fn.ValueType(temp).(*ir.TempType).ElementType()
	op := bld.Create(&ir.Access{Offset: ir.Index(offset)}, []ir.Value{temp}, []ir.Type{&ir.ScalarType{DType: elem}})
	return op.Result(0)
}

// DynAccess reads a temp at a runtime position within rng.
func DynAccess(bld *ir.Builder, temp ir.Value, rng ir.Loop, pos ...ir.Value) ir.Value {
	fn := bld.Block().Func()
	elem := fn.ValueType(temp).(*ir.TempType).ElementType()
	operands := append([]ir.Value{temp}, pos...)
	op := bld.Create(&ir.DynAccess{Range: rng}, operands, []ir.Type{&ir.ScalarType{DType: elem}})
	return op.Result(0)
}

// StoreResult wraps a scalar into a result slot value.
func StoreResult(bld *ir.Builder, val ir.Value) ir.Value {
	fn := bld.Block().Func()
	elem, err := ir.ElementTypeOf(fn.ValueType(val))
	if err != nil {
		panic(err)
	}
	op := bld.Create(&ir.StoreResult{}, []ir.Value{val}, []ir.Type{ir.NewResultType(elem)})
	return op.Result(0)
}

// EmptyResult returns a result slot value that leaves the slot untouched.
func EmptyResult(bld *ir.Builder, elem dtype.DataType) ir.Value {
	op := bld.Create(&ir.StoreResult{}, nil, []ir.Type{ir.NewResultType(elem)})
	return op.Result(0)
}

// Combine merges a lower and an upper computation split on dim at index.
// The result types follow the operand types, reshaped to the domain
// when one is given.
func Combine(bld *ir.Builder, dim int, index int64, domain *ir.Bounds, lower, upper, lowerExt, upperExt []ir.Value) ir.CombineOp {
	fn := bld.Block().Func()
	resultType := func(val ir.Value) ir.Type {
		typ := fn.ValueType(val)
		if domain == nil {
			return typ
		}
		grid, ok := typ.(ir.GridType)
		if !ok {
			return typ
		}
		return grid.WithShape(domain.Shape())
	}
	var results []ir.Type
	for val := range iter.All(lower, lowerExt, upperExt) {
		results = append(results, resultType(val))
	}
	operands := make([]ir.Value, 0, len(lower)+len(upper)+len(lowerExt)+len(upperExt))
	operands = append(operands, lower...)
	operands = append(operands, upper...)
	operands = append(operands, lowerExt...)
	operands = append(operands, upperExt...)
	op := bld.Create(&ir.Combine{
		Dim:       dim,
		Index:     index,
		Domain:    domain,
		NLower:    len(lower),
		NLowerExt: len(lowerExt),
		NUpperExt: len(upperExt),
	}, operands, results)
	combine, _ := ir.AsCombine(op)
	return combine
}
