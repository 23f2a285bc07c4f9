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
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/stencil/ir"
)

func TestTypeString(t *testing.T) {
	tests := []struct {
		typ  ir.Type
		want string
	}{
		{
			typ:  ir.NewFieldType(dtype.Float64, []int64{70, 70, 60}, ir.AllocAuto),
			want: "field<70x70x60xfloat64>",
		},
		{
			typ:  ir.NewFieldType(dtype.Float32, []int64{ir.DynamicSize, ir.DynamicSize, 60}, ir.AllocAuto),
			want: "field<?x?x60xfloat32>",
		},
		{
			typ:  ir.NewTempType(dtype.Float64, []int64{64, ir.ScalarizedSize, 60}, ir.AllocAuto),
			want: "temp<64x_x60xfloat64>",
		},
		{
			typ:  ir.NewResultType(dtype.Float64),
			want: "result<float64>",
		},
		{
			typ:  ir.BoolType,
			want: "bool",
		},
		{
			typ:  &ir.ScalarType{DType: dtype.Float64},
			want: "float64",
		},
		{
			typ:  &ir.IndexType{},
			want: "index",
		},
	}
	for i, test := range tests {
		if got := test.typ.String(); got != test.want {
			t.Errorf("test %d: got %s but want %s", i, got, test.want)
		}
	}
}

func TestTypeEqual(t *testing.T) {
	tests := []struct {
		a, b ir.Type
		want bool
	}{
		{
			a:    ir.NewFieldType(dtype.Float64, []int64{70, 70, 60}, ir.AllocAuto),
			b:    ir.NewFieldType(dtype.Float64, []int64{70, 70, 60}, ir.AllocAuto),
			want: true,
		},
		{
			a:    ir.NewFieldType(dtype.Float64, []int64{70, 70, 60}, ir.AllocAuto),
			b:    ir.NewFieldType(dtype.Float64, []int64{70, 70, 61}, ir.AllocAuto),
			want: false,
		},
		{
			a:    ir.NewFieldType(dtype.Float64, []int64{70, 70, 60}, ir.AllocAuto),
			b:    ir.NewFieldType(dtype.Float32, []int64{70, 70, 60}, ir.AllocAuto),
			want: false,
		},
		{
			a:    ir.NewFieldType(dtype.Float64, []int64{70, 70, 60}, ir.AllocAuto),
			b:    ir.NewFieldType(dtype.Float64, []int64{70, 70, 60}, ir.AllocHeap),
			want: false,
		},
		{
			a:    ir.NewFieldType(dtype.Float64, []int64{70, 70, 60}, ir.AllocAuto),
			b:    ir.NewTempType(dtype.Float64, []int64{70, 70, 60}, ir.AllocAuto),
			want: false,
		},
		{
			a:    ir.NewTempType(dtype.Float64, []int64{70, 70, 60}, ir.AllocAuto),
			b:    ir.NewTempType(dtype.Float64, []int64{70, 70, 60}, ir.AllocAuto),
			want: true,
		},
		{
			a:    ir.NewResultType(dtype.Float64),
			b:    ir.NewResultType(dtype.Float64),
			want: true,
		},
		{
			a:    ir.NewResultType(dtype.Float64),
			b:    ir.NewResultType(dtype.Float32),
			want: false,
		},
		{
			a:    ir.BoolType,
			b:    &ir.ScalarType{DType: dtype.Bool},
			want: true,
		},
		{
			a:    &ir.IndexType{},
			b:    &ir.IndexType{},
			want: true,
		},
		{
			a:    &ir.IndexType{},
			b:    ir.BoolType,
			want: false,
		},
	}
	for i, test := range tests {
		if got := test.a.Equal(test.b); got != test.want {
			t.Errorf("test %d: %s equal %s: got %v but want %v", i, test.a, test.b, got, test.want)
		}
	}
}

func TestWithShape(t *testing.T) {
	field := ir.NewFieldType(dtype.Float64, []int64{ir.DynamicSize, ir.DynamicSize, ir.DynamicSize}, ir.AllocHeap)
	if !field.HasDynamicShape() {
		t.Errorf("got a static shape but want a dynamic one")
	}
	got := field.WithShape([]int64{70, 70, 60})
	if got.HasDynamicShape() {
		t.Errorf("got a dynamic shape but want a static one")
	}
	want := ir.NewFieldType(dtype.Float64, []int64{70, 70, 60}, ir.AllocHeap)
	if !got.Equal(want) {
		t.Errorf("got %s but want %s", got, want)
	}
	if !field.HasDynamicShape() {
		t.Errorf("WithShape mutated the receiver: got %s", field)
	}
}

func TestBackendShape(t *testing.T) {
	tests := []struct {
		typ      *ir.TempType
		want     []int
		wantErr  bool
		wantElem dtype.DataType
	}{
		{
			typ:      ir.NewTempType(dtype.Float64, []int64{70, 70, 60}, ir.AllocAuto),
			want:     []int{70, 70, 60},
			wantElem: dtype.Float64,
		},
		{
			typ:      ir.NewTempType(dtype.Float32, []int64{70, ir.ScalarizedSize, 60}, ir.AllocAuto),
			want:     []int{70, 60},
			wantElem: dtype.Float32,
		},
		{
			typ:     ir.NewTempType(dtype.Float64, []int64{70, ir.DynamicSize, 60}, ir.AllocAuto),
			wantErr: true,
		},
	}
	for i, test := range tests {
		got, err := test.typ.BackendShape()
		if gotErr := err != nil; gotErr != test.wantErr {
			t.Errorf("test %d: got error %v but want error %v", i, err, test.wantErr)
			continue
		}
		if test.wantErr {
			continue
		}
		if got.DType != test.wantElem {
			t.Errorf("test %d: got data type %v but want %v", i, got.DType, test.wantElem)
		}
		if !cmp.Equal(got.AxisLengths, test.want) {
			t.Errorf("test %d: got axis lengths %v but want %v", i, got.AxisLengths, test.want)
		}
	}
}

func TestElementTypeOf(t *testing.T) {
	tests := []struct {
		typ     ir.Type
		want    dtype.DataType
		wantErr bool
	}{
		{
			typ:  ir.NewFieldType(dtype.Float64, []int64{70, 70, 60}, ir.AllocAuto),
			want: dtype.Float64,
		},
		{
			typ:  ir.NewTempType(dtype.Float32, []int64{70, 70, 60}, ir.AllocAuto),
			want: dtype.Float32,
		},
		{
			typ:  ir.NewResultType(dtype.Float64),
			want: dtype.Float64,
		},
		{
			typ:  ir.BoolType,
			want: dtype.Bool,
		},
		{
			typ:     &ir.IndexType{},
			wantErr: true,
		},
	}
	for i, test := range tests {
		got, err := ir.ElementTypeOf(test.typ)
		if gotErr := err != nil; gotErr != test.wantErr {
			t.Errorf("test %d: got error %v but want error %v", i, err, test.wantErr)
			continue
		}
		if test.wantErr {
			continue
		}
		if got != test.want {
			t.Errorf("test %d: got %v but want %v", i, got, test.want)
		}
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		kind ir.Kind
		want string
	}{
		{kind: ir.Bool, want: "bool"},
		{kind: ir.Float32, want: "float32"},
		{kind: ir.Float64, want: "float64"},
		{kind: ir.Field, want: "field"},
		{kind: ir.Temp, want: "temp"},
		{kind: ir.Result, want: "result"},
		{kind: ir.IndexKind, want: "index"},
		{kind: ir.Invalid, want: "invalid"},
	}
	for i, test := range tests {
		if got := test.kind.String(); got != test.want {
			t.Errorf("test %d: got %s but want %s", i, got, test.want)
		}
	}
	if got := ir.Float64.DType(); got != dtype.Float64 {
		t.Errorf("got data type %v but want %v", got, dtype.Float64)
	}
	if got := ir.Temp.DType(); got != dtype.Invalid {
		t.Errorf("got data type %v but want %v", got, dtype.Invalid)
	}
}
