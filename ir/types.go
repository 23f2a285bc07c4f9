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

package ir

import (
	"fmt"
	"strings"

	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/backend/shape"
	"github.com/pkg/errors"
)

// Kind of a type in the stencil IR.
type Kind uint

// Kinds supported by the stencil IR. Scalar kinds map to their backend
// data type; structural kinds extend beyond them.
const (
	Invalid = Kind(dtype.Invalid)

	Bool    = Kind(dtype.Bool)
	Float32 = Kind(dtype.Float32)
	Float64 = Kind(dtype.Float64)

	Field = Kind(iota + dtype.MaxDataType)
	Temp
	Result
	IndexKind
)

// String returns a string representation of a kind.
func (k Kind) String() string {
	switch k {
	case Bool:
		return "bool"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Field:
		return "field"
	case Temp:
		return "temp"
	case Result:
		return "result"
	case IndexKind:
		return "index"
	}
	return "invalid"
}

// DType returns the backend data type of a scalar kind.
func (k Kind) DType() dtype.DataType {
	if k >= Kind(dtype.MaxDataType) {
		return dtype.Invalid
	}
	return dtype.DataType(k)
}

// Allocation selects how the storage of a grid value is provided.
type Allocation int

const (
	// AllocAuto lets the lowering pick the storage of a grid value.
	AllocAuto Allocation = iota
	// AllocHeap stores a grid value in heap memory.
	AllocHeap
	// AllocStack stores a grid value in stack memory.
	AllocStack
)

// String returns a string representation of the allocation.
func (a Allocation) String() string {
	switch a {
	case AllocAuto:
		return "auto"
	case AllocHeap:
		return "heap"
	case AllocStack:
		return "stack"
	}
	return "invalid"
}

// Per-axis extents that are not static sizes.
const (
	// DynamicSize marks an axis whose extent is only known at run time.
	DynamicSize int64 = -1
	// ScalarizedSize marks an axis elided by scalarization.
	ScalarizedSize int64 = -2
)

type (
	// Type of a value in the stencil IR.
	Type interface {
		// Kind of the type.
		Kind() Kind
		// Equal returns true if other is the same type.
		Equal(Type) bool
		// String representation of the type.
		String() string
	}

	// GridType is a type whose values span an iteration domain.
	GridType interface {
		Type
		// ElementType returns the backend data type of the grid elements.
		ElementType() dtype.DataType
		// Shape returns the per-axis extent of the grid.
		Shape() []int64
		// Allocation returns how the storage of the grid is provided.
		Allocation() Allocation
		// Rank returns the number of axes of the grid.
		Rank() int
		// HasDynamicShape returns true if any axis extent is dynamic.
		HasDynamicShape() bool
		// WithShape returns a copy of the type with the given per-axis extents.
		WithShape([]int64) GridType
	}

	// FieldType is the type of an input or output grid of a program.
	FieldType struct {
		elem  dtype.DataType
		shape []int64
		alloc Allocation
	}

	// TempType is the type of an intermediate grid value.
	TempType struct {
		elem  dtype.DataType
		shape []int64
		alloc Allocation
	}

	// ResultType is the type of the value a kernel may return for one
	// result slot of one iteration.
	ResultType struct {
		elem dtype.DataType
	}

	// ScalarType is the type of a single grid element inside a kernel.
	ScalarType struct {
		DType dtype.DataType
	}

	// IndexType is the type of a position in the iteration space.
	IndexType struct{}
)

var (
	_ GridType = (*FieldType)(nil)
	_ GridType = (*TempType)(nil)
	_ Type     = (*ResultType)(nil)
	_ Type     = (*ScalarType)(nil)
	_ Type     = (*IndexType)(nil)
)

// BoolType types boolean values such as comparison results.
var BoolType = &ScalarType{DType: dtype.Bool}

// NewFieldType returns the type of a field with the given element type and extents.
func NewFieldType(elem dtype.DataType, shape []int64, alloc Allocation) *FieldType {
	return &FieldType{elem: elem, shape: shape, alloc: alloc}
}

// Kind of the type.
func (*FieldType) Kind() Kind { return Field }

// ElementType returns the backend data type of the grid elements.
func (t *FieldType) ElementType() dtype.DataType { return t.elem }

// Shape returns the per-axis extent of the grid.
func (t *FieldType) Shape() []int64 { return t.shape }

// Allocation returns how the storage of the grid is provided.
func (t *FieldType) Allocation() Allocation { return t.alloc }

// Rank returns the number of axes of the grid.
func (t *FieldType) Rank() int { return len(t.shape) }

// HasDynamicShape returns true if any axis extent is dynamic.
func (t *FieldType) HasDynamicShape() bool { return hasDynamicShape(t.shape) }

// WithShape returns a copy of the type with the given per-axis extents.
func (t *FieldType) WithShape(shape []int64) GridType {
	return &FieldType{elem: t.elem, shape: shape, alloc: t.alloc}
}

// Equal returns true if other is a field type with the same element type,
// extents, and allocation.
func (t *FieldType) Equal(other Type) bool {
	o, ok := other.(*FieldType)
	if !ok {
		return false
	}
	return gridEqual(t, o)
}

// String representation of the type.
func (t *FieldType) String() string {
	return gridString("field", t)
}

// NewTempType returns the type of a temp with the given element type and extents.
func NewTempType(elem dtype.DataType, shape []int64, alloc Allocation) *TempType {
	return &TempType{elem: elem, shape: shape, alloc: alloc}
}

// Kind of the type.
func (*TempType) Kind() Kind { return Temp }

// ElementType returns the backend data type of the grid elements.
func (t *TempType) ElementType() dtype.DataType { return t.elem }

// Shape returns the per-axis extent of the grid.
func (t *TempType) Shape() []int64 { return t.shape }

// Allocation returns how the storage of the grid is provided.
func (t *TempType) Allocation() Allocation { return t.alloc }

// Rank returns the number of axes of the grid.
func (t *TempType) Rank() int { return len(t.shape) }

// HasDynamicShape returns true if any axis extent is dynamic.
func (t *TempType) HasDynamicShape() bool { return hasDynamicShape(t.shape) }

// WithShape returns a copy of the type with the given per-axis extents.
func (t *TempType) WithShape(shape []int64) GridType {
	return &TempType{elem: t.elem, shape: shape, alloc: t.alloc}
}

// Equal returns true if other is a temp type with the same element type,
// extents, and allocation.
func (t *TempType) Equal(other Type) bool {
	o, ok := other.(*TempType)
	if !ok {
		return false
	}
	return gridEqual(t, o)
}

// String representation of the type.
func (t *TempType) String() string {
	return gridString("temp", t)
}

// BackendShape returns the backend array shape of a statically shaped temp.
func (t *TempType) BackendShape() (*shape.Shape, error) {
	if t.HasDynamicShape() {
		return nil, errors.Errorf("cannot export %s to a backend shape: the shape is dynamic", t.String())
	}
	axes := make([]int, 0, len(t.shape))
	for _, axis := range t.shape {
		if axis == ScalarizedSize {
			continue
		}
		axes = append(axes, int(axis))
	}
	return &shape.Shape{DType: t.elem, AxisLengths: axes}, nil
}

// NewResultType returns the type of a kernel result slot.
func NewResultType(elem dtype.DataType) *ResultType {
	return &ResultType{elem: elem}
}

// Kind of the type.
func (*ResultType) Kind() Kind { return Result }

// ElementType returns the backend data type of the result slot.
func (t *ResultType) ElementType() dtype.DataType { return t.elem }

// Equal returns true if other is a result type with the same element type.
func (t *ResultType) Equal(other Type) bool {
	o, ok := other.(*ResultType)
	if !ok {
		return false
	}
	return t.elem == o.elem
}

// String representation of the type.
func (t *ResultType) String() string {
	return fmt.Sprintf("result<%s>", Kind(t.elem))
}

// Kind of the type.
func (t *ScalarType) Kind() Kind { return Kind(t.DType) }

// Equal returns true if other is a scalar of the same data type.
func (t *ScalarType) Equal(other Type) bool {
	o, ok := other.(*ScalarType)
	if !ok {
		return false
	}
	return t.DType == o.DType
}

// String representation of the type.
func (t *ScalarType) String() string {
	return Kind(t.DType).String()
}

// Kind of the type.
func (*IndexType) Kind() Kind { return IndexKind }

// Equal returns true if other is an index type.
func (*IndexType) Equal(other Type) bool {
	_, ok := other.(*IndexType)
	return ok
}

// String representation of the type.
func (*IndexType) String() string {
	return "index"
}

// ElementTypeOf returns the backend data type of the elements of a value type.
func ElementTypeOf(t Type) (dtype.DataType, error) {
	switch tt := t.(type) {
	case GridType:
		return tt.ElementType(), nil
	case *ResultType:
		return tt.elem, nil
	case *ScalarType:
		return tt.DType, nil
	}
	return dtype.Invalid, errors.Errorf("type %s has no element type", t.String())
}

func hasDynamicShape(shape []int64) bool {
	for _, axis := range shape {
		if axis == DynamicSize {
			return true
		}
	}
	return false
}

func gridEqual(a, b GridType) bool {
	if a.ElementType() != b.ElementType() || a.Allocation() != b.Allocation() {
		return false
	}
	as, bs := a.Shape(), b.Shape()
	if len(as) != len(bs) {
		return false
	}
	for i, axis := range as {
		if axis != bs[i] {
			return false
		}
	}
	return true
}

func gridString(name string, t GridType) string {
	axes := make([]string, 0, t.Rank())
	for _, axis := range t.Shape() {
		switch axis {
		case DynamicSize:
			axes = append(axes, "?")
		case ScalarizedSize:
			axes = append(axes, "_")
		default:
			axes = append(axes, fmt.Sprint(axis))
		}
	}
	return fmt.Sprintf("%s<%sx%s>", name, strings.Join(axes, "x"), Kind(t.ElementType()))
}
