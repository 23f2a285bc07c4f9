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

package ir_test

import (
	"strings"
	"testing"

	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/stencil/ir"
	"github.com/gx-org/stencil/ir/irhelper"
)

// source casts a program field to dom and loads it into a temp.
func source(bld *ir.Builder, field ir.Value, dom ir.Bounds) ir.Value {
	cast := irhelper.Cast(bld, field, dom)
	return irhelper.Load(bld, cast, &dom)
}

func TestVerifyValidProgram(t *testing.T) {
	fn := irhelper.Program("main", irhelper.DynField(dtype.Float64, 3), irhelper.DynField(dtype.Float64, 3))
	bld := ir.AtEnd(fn.Body())
	halo := domain(ir.Index{-1, 0, 0}, ir.Index{65, 64, 60})
	dom := domain(ir.Index{0, 0, 0}, ir.Index{64, 64, 60})
	temp := source(bld, fn.Body().Param(0), halo)
	apply := irhelper.Apply(bld, &dom, []ir.Value{temp}, []ir.Type{irhelper.Temp(dtype.Float64, 64, 64, 60)}, func(bld *ir.Builder, params []ir.Value) []ir.Value {
		irhelper.Access(bld, params[0], -1, 0, 0)
		left := irhelper.Access(bld, params[0], 1, 0, 0)
		return []ir.Value{irhelper.StoreResult(bld, left)}
	})
	out := irhelper.Cast(bld, fn.Body().Param(1), dom)
	irhelper.Store(bld, apply.Operation().Result(0), out, dom)
	if err := ir.Verify(fn); err != nil {
		t.Errorf("got error %v but want a valid program", err)
	}
}

func TestVerifyValidUnrolledProgram(t *testing.T) {
	fn := irhelper.Program("main", irhelper.DynField(dtype.Float64, 3), irhelper.DynField(dtype.Float64, 3))
	bld := ir.AtEnd(fn.Body())
	halo := domain(ir.Index{0, 0, 0}, ir.Index{64, 64, 61})
	dom := domain(ir.Index{0, 0, 0}, ir.Index{64, 64, 60})
	temp := source(bld, fn.Body().Param(0), halo)
	apply := irhelper.ApplyUnroll(bld, &dom, ir.Index{1, 1, 2}, []ir.Value{temp}, []ir.Type{irhelper.Temp(dtype.Float64, 64, 64, 60)}, func(bld *ir.Builder, params []ir.Value) []ir.Value {
		even := irhelper.Access(bld, params[0], 0, 0, 0)
		odd := irhelper.Access(bld, params[0], 0, 0, 1)
		return []ir.Value{irhelper.StoreResult(bld, even), irhelper.StoreResult(bld, odd)}
	})
	out := irhelper.Cast(bld, fn.Body().Param(1), dom)
	irhelper.Store(bld, apply.Operation().Result(0), out, dom)
	if err := ir.Verify(fn); err != nil {
		t.Errorf("got error %v but want a valid program", err)
	}
}

func TestVerifyValidBufferedProgram(t *testing.T) {
	fn := irhelper.Program("main", irhelper.DynField(dtype.Float64, 3), irhelper.DynField(dtype.Float64, 3))
	bld := ir.AtEnd(fn.Body())
	dom := domain(ir.Index{0, 0, 0}, ir.Index{64, 64, 60})
	temp := source(bld, fn.Body().Param(0), dom)
	result := []ir.Type{irhelper.Temp(dtype.Float64, 64, 64, 60)}
	center := func(bld *ir.Builder, params []ir.Value) []ir.Value {
		return []ir.Value{irhelper.StoreResult(bld, irhelper.Access(bld, params[0], 0, 0, 0))}
	}
	first := irhelper.Apply(bld, &dom, []ir.Value{temp}, result, center)
	buffered := irhelper.Buffer(bld, first.Operation().Result(0), &dom)
	second := irhelper.Apply(bld, &dom, []ir.Value{buffered}, result, center)
	out := irhelper.Cast(bld, fn.Body().Param(1), dom)
	irhelper.Store(bld, second.Operation().Result(0), out, dom)
	if err := ir.Verify(fn); err != nil {
		t.Errorf("got error %v but want a valid program", err)
	}
}

func TestVerifyUseBeforeDef(t *testing.T) {
	fn := ir.NewFunc("main")
	end := ir.AtEnd(fn.Body())
	a := end.Create(&ir.Constant{Value: 0}, nil, []ir.Type{&ir.IndexType{}}).Result(0)
	b := end.Create(&ir.Constant{Value: 1}, nil, []ir.Type{&ir.IndexType{}}).Result(0)
	ir.AtStart(fn.Body()).Create(&ir.Cmp{Pred: ir.ULT}, []ir.Value{a, b}, []ir.Type{ir.BoolType})
	err := ir.Verify(fn)
	if err == nil || !strings.Contains(err.Error(), "used before being defined") {
		t.Errorf("got error %v but want a use before definition error", err)
	}
}

func TestVerifyKernelIsolation(t *testing.T) {
	fn := irhelper.Program("main", irhelper.DynField(dtype.Float64, 3))
	bld := ir.AtEnd(fn.Body())
	dom := domain(ir.Index{0, 0, 0}, ir.Index{64, 64, 60})
	temp := source(bld, fn.Body().Param(0), dom)
	irhelper.Apply(bld, &dom, nil, []ir.Type{irhelper.Temp(dtype.Float64, 64, 64, 60)}, func(bld *ir.Builder, params []ir.Value) []ir.Value {
		return []ir.Value{irhelper.StoreResult(bld, irhelper.Access(bld, temp, 0, 0, 0))}
	})
	err := ir.Verify(fn)
	if err == nil || !strings.Contains(err.Error(), "used before being defined") {
		t.Errorf("got error %v but want a use before definition error", err)
	}
}

func TestVerifyOpRules(t *testing.T) {
	dom := domain(ir.Index{0, 0, 0}, ir.Index{64, 64, 60})
	// emptyApply builds an apply producing results without reading inputs.
	emptyApply := func(bld *ir.Builder, results ...ir.Type) ir.ApplyOp {
		return irhelper.Apply(bld, &dom, nil, results, func(bld *ir.Builder, params []ir.Value) []ir.Value {
			rets := make([]ir.Value, len(results))
			for i, typ := range results {
				elem, err := ir.ElementTypeOf(typ)
				if err != nil {
					panic(err)
				}
				rets[i] = irhelper.EmptyResult(bld, elem)
			}
			return rets
		})
	}
	tests := []struct {
		name  string
		build func(bld *ir.Builder, fn *ir.Func)
		want  string
	}{
		{
			name: "cast of a static field",
			build: func(bld *ir.Builder, fn *ir.Func) {
				static := irhelper.Cast(bld, fn.Body().Param(0), dom)
				irhelper.Cast(bld, static, dom)
			},
			want: "already statically shaped",
		},
		{
			name: "load without a cast",
			build: func(bld *ir.Builder, fn *ir.Func) {
				irhelper.Load(bld, fn.Body().Param(0), &dom)
			},
			want: "cast it first",
		},
		{
			name: "load outside the field domain",
			build: func(bld *ir.Builder, fn *ir.Func) {
				cast := irhelper.Cast(bld, fn.Body().Param(0), dom)
				halo := domain(ir.Index{-1, 0, 0}, ir.Index{64, 64, 60})
				irhelper.Load(bld, cast, &halo)
			},
			want: "is outside the field domain",
		},
		{
			name: "buffer of a load result",
			build: func(bld *ir.Builder, fn *ir.Func) {
				irhelper.Buffer(bld, source(bld, fn.Body().Param(0), dom), &dom)
			},
			want: "buffer operand is not produced by an apply or a combine",
		},
		{
			name: "buffer changes the element type",
			build: func(bld *ir.Builder, fn *ir.Func) {
				a := emptyApply(bld, irhelper.Temp(dtype.Float64, 64, 64, 60)).Operation().Result(0)
				bld.Create(&ir.Buffer{}, []ir.Value{a}, []ir.Type{irhelper.Temp(dtype.Float32, 64, 64, 60)})
			},
			want: "buffer changes the element type from float64 to float32",
		},
		{
			name: "buffer changes the allocation",
			build: func(bld *ir.Builder, fn *ir.Func) {
				a := emptyApply(bld, irhelper.Temp(dtype.Float64, 64, 64, 60)).Operation().Result(0)
				bld.Create(&ir.Buffer{}, []ir.Value{a}, []ir.Type{ir.NewTempType(dtype.Float64, []int64{64, 64, 60}, ir.AllocHeap)})
			},
			want: "buffer changes the allocation from auto to heap",
		},
		{
			name: "buffered value consumed outside a buffer",
			build: func(bld *ir.Builder, fn *ir.Func) {
				cast := irhelper.Cast(bld, fn.Body().Param(0), dom)
				a := emptyApply(bld, irhelper.Temp(dtype.Float64, 64, 64, 60)).Operation().Result(0)
				irhelper.Buffer(bld, a, &dom)
				irhelper.Store(bld, a, cast, dom)
			},
			want: "all consumers must be buffers",
		},
		{
			name: "buffer result shape",
			build: func(bld *ir.Builder, fn *ir.Func) {
				a := emptyApply(bld, irhelper.Temp(dtype.Float64, 64, 64, 60)).Operation().Result(0)
				half := domain(ir.Index{0, 0, 0}, ir.Index{32, 64, 60})
				bld.Create(&ir.Buffer{Domain: &half}, []ir.Value{a}, []ir.Type{irhelper.Temp(dtype.Float64, 64, 64, 60)})
			},
			want: "buffer result shape temp<64x64x60xfloat64> does not match the domain",
		},
		{
			name: "store without a domain",
			build: func(bld *ir.Builder, fn *ir.Func) {
				cast := irhelper.Cast(bld, fn.Body().Param(0), dom)
				apply := emptyApply(bld, irhelper.Temp(dtype.Float64, 64, 64, 60))
				bld.Create(&ir.Store{}, []ir.Value{apply.Operation().Result(0), cast}, nil)
			},
			want: "store has no domain",
		},
		{
			name: "field written twice",
			build: func(bld *ir.Builder, fn *ir.Func) {
				cast := irhelper.Cast(bld, fn.Body().Param(0), dom)
				a := emptyApply(bld, irhelper.Temp(dtype.Float64, 64, 64, 60))
				b := emptyApply(bld, irhelper.Temp(dtype.Float64, 64, 64, 60))
				irhelper.Store(bld, a.Operation().Result(0), cast, dom)
				irhelper.Store(bld, b.Operation().Result(0), cast, dom)
			},
			want: "field is written by more than one store",
		},
		{
			name: "field loaded and stored",
			build: func(bld *ir.Builder, fn *ir.Func) {
				source(bld, fn.Body().Param(0), dom)
				cast := irhelper.Cast(bld, fn.Body().Param(0), dom)
				apply := emptyApply(bld, irhelper.Temp(dtype.Float64, 64, 64, 60))
				irhelper.Store(bld, apply.Operation().Result(0), cast, dom)
			},
			want: "field is both loaded and stored",
		},
		{
			name: "kernel parameter count",
			build: func(bld *ir.Builder, fn *ir.Func) {
				temp := source(bld, fn.Body().Param(0), dom)
				op := bld.Create(&ir.Apply{}, []ir.Value{temp}, []ir.Type{irhelper.Temp(dtype.Float64, 64, 64, 60)})
				op.NewBlock()
			},
			want: "kernel has 0 parameter(s) for 1 operand(s)",
		},
		{
			name: "kernel without a return",
			build: func(bld *ir.Builder, fn *ir.Func) {
				op := bld.Create(&ir.Apply{Domain: &dom}, nil, []ir.Type{irhelper.Temp(dtype.Float64, 64, 64, 60)})
				op.NewBlock()
			},
			want: "kernel does not end with a return",
		},
		{
			name: "apply result shape",
			build: func(bld *ir.Builder, fn *ir.Func) {
				emptyApply(bld, irhelper.Temp(dtype.Float64, 32, 64, 60))
			},
			want: "apply result 0 has shape",
		},
		{
			name: "combine operand packing",
			build: func(bld *ir.Builder, fn *ir.Func) {
				a := emptyApply(bld, irhelper.Temp(dtype.Float64, 64, 64, 60)).Operation().Result(0)
				b := emptyApply(bld, irhelper.Temp(dtype.Float64, 64, 64, 60)).Operation().Result(0)
				c := emptyApply(bld, irhelper.Temp(dtype.Float64, 64, 64, 60)).Operation().Result(0)
				bld.Create(&ir.Combine{Dim: 0, Index: 32, NLower: 1}, []ir.Value{a, b, c}, []ir.Type{irhelper.Temp(dtype.Float64, 64, 64, 60)})
			},
			want: "combine has 3 operand(s) but its groups pack 2",
		},
		{
			name: "combine element types",
			build: func(bld *ir.Builder, fn *ir.Func) {
				lower := emptyApply(bld, irhelper.Temp(dtype.Float64, 64, 64, 60)).Operation().Result(0)
				upper := emptyApply(bld, irhelper.Temp(dtype.Float32, 64, 64, 60)).Operation().Result(0)
				irhelper.Combine(bld, 0, 32, nil, []ir.Value{lower}, []ir.Value{upper}, nil, nil)
			},
			want: "below the split and float32 above",
		},
		{
			name: "combine split axis",
			build: func(bld *ir.Builder, fn *ir.Func) {
				lower := emptyApply(bld, irhelper.Temp(dtype.Float64, 64, 64, 60)).Operation().Result(0)
				upper := emptyApply(bld, irhelper.Temp(dtype.Float64, 64, 64, 60)).Operation().Result(0)
				irhelper.Combine(bld, 3, 32, nil, []ir.Value{lower}, []ir.Value{upper}, nil, nil)
			},
			want: "combine splits axis 3 of a rank 3 domain",
		},
		{
			name: "access outside a kernel",
			build: func(bld *ir.Builder, fn *ir.Func) {
				irhelper.Access(bld, source(bld, fn.Body().Param(0), dom), 0, 0, 0)
			},
			want: "access outside of a kernel",
		},
		{
			name: "access offset rank",
			build: func(bld *ir.Builder, fn *ir.Func) {
				temp := source(bld, fn.Body().Param(0), dom)
				irhelper.Apply(bld, &dom, []ir.Value{temp}, []ir.Type{irhelper.Temp(dtype.Float64, 64, 64, 60)}, func(bld *ir.Builder, params []ir.Value) []ir.Value {
					return []ir.Value{irhelper.StoreResult(bld, irhelper.Access(bld, params[0], 0, 0))}
				})
			},
			want: "access offset has rank 2 but the temp has rank 3",
		},
		{
			name: "dyn_access position count",
			build: func(bld *ir.Builder, fn *ir.Func) {
				temp := source(bld, fn.Body().Param(0), dom)
				irhelper.Apply(bld, &dom, []ir.Value{temp}, []ir.Type{irhelper.Temp(dtype.Float64, 64, 64, 60)}, func(bld *ir.Builder, params []ir.Value) []ir.Value {
					pos := bld.Create(&ir.Pos{Dim: 0, Offset: ir.Zero(3)}, nil, []ir.Type{&ir.IndexType{}})
					at := irhelper.DynAccess(bld, params[0], ir.Loop{0, 0, 0, 0, 0, 0}, pos.Result(0))
					return []ir.Value{irhelper.StoreResult(bld, at)}
				})
			},
			want: "dyn_access has 1 position operand(s) for a rank 3 temp",
		},
		{
			name: "index axis out of range",
			build: func(bld *ir.Builder, fn *ir.Func) {
				irhelper.Apply(bld, &dom, nil, []ir.Type{irhelper.Temp(dtype.Float64, 64, 64, 60)}, func(bld *ir.Builder, params []ir.Value) []ir.Value {
					bld.Create(&ir.Pos{Dim: 3, Offset: ir.Zero(3)}, nil, []ir.Type{&ir.IndexType{}})
					return []ir.Value{irhelper.EmptyResult(bld, dtype.Float64)}
				})
			},
			want: "index reads axis 3 of a rank 3 domain",
		},
		{
			name: "store_result mapped to two slots",
			build: func(bld *ir.Builder, fn *ir.Func) {
				results := []ir.Type{irhelper.Temp(dtype.Float64, 64, 64, 60), irhelper.Temp(dtype.Float64, 64, 64, 60)}
				irhelper.Apply(bld, &dom, nil, results, func(bld *ir.Builder, params []ir.Value) []ir.Value {
					res := irhelper.EmptyResult(bld, dtype.Float64)
					return []ir.Value{res, res}
				})
			},
			want: "maps to result slots 0 and 1",
		},
		{
			name: "store_result without a slot",
			build: func(bld *ir.Builder, fn *ir.Func) {
				irhelper.Apply(bld, &dom, nil, []ir.Type{irhelper.Temp(dtype.Float64, 64, 64, 60)}, func(bld *ir.Builder, params []ir.Value) []ir.Value {
					irhelper.EmptyResult(bld, dtype.Float64)
					return []ir.Value{irhelper.EmptyResult(bld, dtype.Float64)}
				})
			},
			want: "does not reach a result slot",
		},
		{
			name: "kernel unrolled on two axes",
			build: func(bld *ir.Builder, fn *ir.Func) {
				irhelper.ApplyUnroll(bld, &dom, ir.Index{2, 2, 1}, nil, []ir.Type{irhelper.Temp(dtype.Float64, 64, 64, 60)}, func(bld *ir.Builder, params []ir.Value) []ir.Value {
					return []ir.Value{irhelper.EmptyResult(bld, dtype.Float64)}
				})
			},
			want: "kernel is unrolled on 2 axes",
		},
		{
			name: "unroll factor below one",
			build: func(bld *ir.Builder, fn *ir.Func) {
				irhelper.ApplyUnroll(bld, &dom, ir.Index{0, 1, 1}, nil, []ir.Type{irhelper.Temp(dtype.Float64, 64, 64, 60)}, func(bld *ir.Builder, params []ir.Value) []ir.Value {
					return []ir.Value{irhelper.EmptyResult(bld, dtype.Float64)}
				})
			},
			want: "unroll factor 0 on axis 0",
		},
		{
			name: "return operand count",
			build: func(bld *ir.Builder, fn *ir.Func) {
				irhelper.Apply(bld, &dom, nil, []ir.Type{irhelper.Temp(dtype.Float64, 64, 64, 60)}, func(bld *ir.Builder, params []ir.Value) []ir.Value {
					return []ir.Value{irhelper.EmptyResult(bld, dtype.Float64), irhelper.EmptyResult(bld, dtype.Float64)}
				})
			},
			want: "return has 2 operand(s) for 1 result slot(s) unrolled 1 time(s)",
		},
		{
			name: "branch yield count",
			build: func(bld *ir.Builder, fn *ir.Func) {
				split := bld.Create(&ir.Constant{Value: 30}, nil, []ir.Type{&ir.IndexType{}})
				limit := bld.Create(&ir.Constant{Value: 60}, nil, []ir.Type{&ir.IndexType{}})
				cmp := bld.Create(&ir.Cmp{Pred: ir.ULT}, []ir.Value{split.Result(0), limit.Result(0)}, []ir.Type{ir.BoolType})
				cond := bld.Create(&ir.Cond{}, []ir.Value{cmp.Result(0)}, []ir.Type{&ir.IndexType{}})
				then := cond.NewBlock()
				ir.AtEnd(then).Create(&ir.Yield{}, nil, nil)
				other := cond.NewBlock()
				ir.AtEnd(other).Create(&ir.Yield{}, []ir.Value{split.Result(0)}, nil)
			},
			want: "branch 0 yields 0 value(s) for 1 result(s)",
		},
		{
			name: "yield outside a conditional",
			build: func(bld *ir.Builder, fn *ir.Func) {
				bld.Create(&ir.Yield{}, nil, nil)
			},
			want: "yield outside of a conditional",
		},
		{
			name: "domain below the consumer requirement",
			build: func(bld *ir.Builder, fn *ir.Func) {
				halo := domain(ir.Index{-1, 0, 0}, ir.Index{65, 64, 60})
				cast := irhelper.Cast(bld, fn.Body().Param(0), halo)
				temp := irhelper.Load(bld, cast, &dom)
				irhelper.Apply(bld, &dom, []ir.Value{temp}, []ir.Type{irhelper.Temp(dtype.Float64, 64, 64, 60)}, func(bld *ir.Builder, params []ir.Value) []ir.Value {
					return []ir.Value{irhelper.StoreResult(bld, irhelper.Access(bld, params[0], -1, 0, 0))}
				})
			},
			want: "does not cover the domain",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			fn := irhelper.Program("main", irhelper.DynField(dtype.Float64, 3))
			test.build(ir.AtEnd(fn.Body()), fn)
			err := ir.Verify(fn)
			if err == nil || !strings.Contains(err.Error(), test.want) {
				t.Errorf("got error %v but want an error containing %q", err, test.want)
			}
		})
	}
}
