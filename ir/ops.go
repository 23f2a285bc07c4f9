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
	"github.com/gx-org/stencil/base/iter"
	"github.com/gx-org/stencil/base/ordered"
)

// Op is the payload of an operation, one variant per stencil instruction.
type Op interface {
	// OpName returns the mnemonic of the operation.
	OpName() string
	op()
}

// Predicate selects the comparison computed by Cmp.
type Predicate int

// ULT compares unsigned less than.
const ULT Predicate = iota

// String returns the mnemonic of the predicate.
func (p Predicate) String() string {
	if p == ULT {
		return "ult"
	}
	return "invalid"
}

type (
	// Cast asserts the static iteration domain of a dynamically shaped field.
	// It is the only operation turning a dynamic field into a static one.
	Cast struct {
		Domain Bounds
	}

	// Load makes the content of a field available as a temp.
	Load struct {
		Domain *Bounds
	}

	// Buffer materializes the temp produced by a computation.
	Buffer struct {
		Domain *Bounds
	}

	// Store writes a temp to a field over a domain.
	Store struct {
		Domain *Bounds
	}

	// Apply runs a kernel, its single block, over every point of a domain.
	// The block parameters mirror the operands one to one.
	Apply struct {
		Domain *Bounds
	}

	// Combine merges two computations split on axis Dim at coordinate
	// Index: below Index results come from the lower operands, above
	// from the upper operands. Operands are packed lower, upper,
	// lowerext, upperext; results are ordered primary results first,
	// then lower extras, then upper extras.
	Combine struct {
		Dim       int
		Index     int64
		Domain    *Bounds
		NLower    int
		NLowerExt int
		NUpperExt int
	}

	// Access reads a temp at a constant offset from the current position.
	Access struct {
		Offset Index
	}

	// DynAccess reads a temp at a runtime position that stays within
	// Range around the current position.
	DynAccess struct {
		Range Loop
	}

	// Pos returns the current position on an axis, shifted by Offset.
	Pos struct {
		Dim    int
		Offset Index
	}

	// StoreResult wraps the value a kernel produces for one result slot
	// of the current iteration. Without an operand, the slot is left
	// untouched.
	StoreResult struct{}

	// Return terminates a kernel with the values of its result slots.
	// With an unroll configuration, each slot takes one value per
	// unrolled iteration.
	Return struct {
		Unroll Index
	}

	// Constant materializes an index constant.
	Constant struct {
		Value int64
	}

	// Cmp compares two index values.
	Cmp struct {
		Pred Predicate
	}

	// Cond selects between its two blocks with a boolean operand and
	// forwards the values yielded by the taken block.
	Cond struct{}

	// Yield terminates a block of a Cond with the values the block
	// produces.
	Yield struct{}
)

var (
	_ Op = (*Cast)(nil)
	_ Op = (*Load)(nil)
	_ Op = (*Buffer)(nil)
	_ Op = (*Store)(nil)
	_ Op = (*Apply)(nil)
	_ Op = (*Combine)(nil)
	_ Op = (*Access)(nil)
	_ Op = (*DynAccess)(nil)
	_ Op = (*Pos)(nil)
	_ Op = (*StoreResult)(nil)
	_ Op = (*Return)(nil)
	_ Op = (*Constant)(nil)
	_ Op = (*Cmp)(nil)
	_ Op = (*Cond)(nil)
	_ Op = (*Yield)(nil)
)

func (*Cast) op()        {}
func (*Load) op()        {}
func (*Buffer) op()      {}
func (*Store) op()       {}
func (*Apply) op()       {}
func (*Combine) op()     {}
func (*Access) op()      {}
func (*DynAccess) op()   {}
func (*Pos) op()         {}
func (*StoreResult) op() {}
func (*Return) op()      {}
func (*Constant) op()    {}
func (*Cmp) op()         {}
func (*Cond) op()        {}
func (*Yield) op()       {}

// OpName returns the mnemonic of the operation.
func (*Cast) OpName() string { return "cast" }

// OpName returns the mnemonic of the operation.
func (*Load) OpName() string { return "load" }

// OpName returns the mnemonic of the operation.
func (*Buffer) OpName() string { return "buffer" }

// OpName returns the mnemonic of the operation.
func (*Store) OpName() string { return "store" }

// OpName returns the mnemonic of the operation.
func (*Apply) OpName() string { return "apply" }

// OpName returns the mnemonic of the operation.
func (*Combine) OpName() string { return "combine" }

// OpName returns the mnemonic of the operation.
func (*Access) OpName() string { return "access" }

// OpName returns the mnemonic of the operation.
func (*DynAccess) OpName() string { return "dyn_access" }

// OpName returns the mnemonic of the operation.
func (*Pos) OpName() string { return "index" }

// OpName returns the mnemonic of the operation.
func (*StoreResult) OpName() string { return "store_result" }

// OpName returns the mnemonic of the operation.
func (*Return) OpName() string { return "return" }

// OpName returns the mnemonic of the operation.
func (*Constant) OpName() string { return "constant" }

// OpName returns the mnemonic of the operation.
func (*Cmp) OpName() string { return "cmp" }

// OpName returns the mnemonic of the operation.
func (*Cond) OpName() string { return "if" }

// OpName returns the mnemonic of the operation.
func (*Yield) OpName() string { return "yield" }

type (
	// CastOp is a view of an operation with a Cast payload.
	CastOp struct{ op *Operation }

	// LoadOp is a view of an operation with a Load payload.
	LoadOp struct{ op *Operation }

	// BufferOp is a view of an operation with a Buffer payload.
	BufferOp struct{ op *Operation }

	// StoreOp is a view of an operation with a Store payload.
	StoreOp struct{ op *Operation }

	// ApplyOp is a view of an operation with an Apply payload.
	ApplyOp struct{ op *Operation }

	// CombineOp is a view of an operation with a Combine payload.
	CombineOp struct{ op *Operation }

	// ReturnOp is a view of an operation with a Return payload.
	ReturnOp struct{ op *Operation }

	// CondOp is a view of an operation with a Cond payload.
	CondOp struct{ op *Operation }
)

// AsCast returns a cast view of op.
func AsCast(op *Operation) (CastOp, bool) {
	_, ok := op.Op().(*Cast)
	return CastOp{op: op}, ok
}

// AsLoad returns a load view of op.
func AsLoad(op *Operation) (LoadOp, bool) {
	_, ok := op.Op().(*Load)
	return LoadOp{op: op}, ok
}

// AsBuffer returns a buffer view of op.
func AsBuffer(op *Operation) (BufferOp, bool) {
	_, ok := op.Op().(*Buffer)
	return BufferOp{op: op}, ok
}

// AsStore returns a store view of op.
func AsStore(op *Operation) (StoreOp, bool) {
	_, ok := op.Op().(*Store)
	return StoreOp{op: op}, ok
}

// AsApply returns an apply view of op.
func AsApply(op *Operation) (ApplyOp, bool) {
	_, ok := op.Op().(*Apply)
	return ApplyOp{op: op}, ok
}

// AsCombine returns a combine view of op.
func AsCombine(op *Operation) (CombineOp, bool) {
	_, ok := op.Op().(*Combine)
	return CombineOp{op: op}, ok
}

// AsReturn returns a return view of op.
func AsReturn(op *Operation) (ReturnOp, bool) {
	_, ok := op.Op().(*Return)
	return ReturnOp{op: op}, ok
}

// AsCond returns a conditional view of op.
func AsCond(op *Operation) (CondOp, bool) {
	_, ok := op.Op().(*Cond)
	return CondOp{op: op}, ok
}

// Operation returns the underlying operation.
func (v CastOp) Operation() *Operation { return v.op }

// Field returns the dynamically shaped field operand.
func (v CastOp) Field() Value { return v.op.Operand(0) }

// Res returns the statically shaped field result.
func (v CastOp) Res() Value { return v.op.Result(0) }

func (v CastOp) payload() *Cast { return v.op.Op().(*Cast) }

// HasBounds returns true: the domain of a cast is always declared.
func (v CastOp) HasBounds() bool { return true }

// Bounds returns the asserted domain of the field.
func (v CastOp) Bounds() Bounds { return v.payload().Domain }

// SetBounds declares the asserted domain of the field.
func (v CastOp) SetBounds(b Bounds) { v.payload().Domain = b }

// Operation returns the underlying operation.
func (v LoadOp) Operation() *Operation { return v.op }

// Field returns the field operand the load reads.
func (v LoadOp) Field() Value { return v.op.Operand(0) }

// Temp returns the temp result of the load.
func (v LoadOp) Temp() Value { return v.op.Result(0) }

func (v LoadOp) payload() *Load { return v.op.Op().(*Load) }

// HasBounds returns true if the domain of the load has been declared.
func (v LoadOp) HasBounds() bool { return v.payload().Domain != nil }

// Bounds returns the declared domain of the load.
func (v LoadOp) Bounds() Bounds { return *v.payload().Domain }

// SetBounds declares the domain of the load.
func (v LoadOp) SetBounds(b Bounds) { v.payload().Domain = &b }

// Operation returns the underlying operation.
func (v BufferOp) Operation() *Operation { return v.op }

// Temp returns the temp operand the buffer materializes.
func (v BufferOp) Temp() Value { return v.op.Operand(0) }

// Res returns the materialized temp result.
func (v BufferOp) Res() Value { return v.op.Result(0) }

func (v BufferOp) payload() *Buffer { return v.op.Op().(*Buffer) }

// HasBounds returns true if the domain of the buffer has been declared.
func (v BufferOp) HasBounds() bool { return v.payload().Domain != nil }

// Bounds returns the declared domain of the buffer.
func (v BufferOp) Bounds() Bounds { return *v.payload().Domain }

// SetBounds declares the domain of the buffer.
func (v BufferOp) SetBounds(b Bounds) { v.payload().Domain = &b }

// Operation returns the underlying operation.
func (v StoreOp) Operation() *Operation { return v.op }

// Temp returns the temp operand the store writes to the field.
func (v StoreOp) Temp() Value { return v.op.Operand(0) }

// Field returns the field operand the store writes.
func (v StoreOp) Field() Value { return v.op.Operand(1) }

func (v StoreOp) payload() *Store { return v.op.Op().(*Store) }

// HasBounds returns true if the domain of the store has been declared.
func (v StoreOp) HasBounds() bool { return v.payload().Domain != nil }

// Bounds returns the declared domain of the store.
func (v StoreOp) Bounds() Bounds { return *v.payload().Domain }

// SetBounds declares the domain of the store.
func (v StoreOp) SetBounds(b Bounds) { v.payload().Domain = &b }

// Operation returns the underlying operation.
func (v ApplyOp) Operation() *Operation { return v.op }

// Body returns the kernel block of the apply.
func (v ApplyOp) Body() *Block { return v.op.Block(0) }

// Ret returns the return terminating the kernel of the apply.
func (v ApplyOp) Ret() (ReturnOp, bool) {
	term := v.Body().Terminator()
	if term == nil {
		return ReturnOp{}, false
	}
	return AsReturn(term)
}

// ResultIndex returns the position of a value among the results of the
// apply, or -1 if the value is not a result of the apply.
func (v ApplyOp) ResultIndex(val Value) int {
	for i, res := range v.op.Results() {
		if res == val {
			return i
		}
	}
	return -1
}

func (v ApplyOp) payload() *Apply { return v.op.Op().(*Apply) }

// HasBounds returns true if the domain of the apply has been declared.
func (v ApplyOp) HasBounds() bool { return v.payload().Domain != nil }

// Bounds returns the declared domain of the apply.
func (v ApplyOp) Bounds() Bounds { return *v.payload().Domain }

// SetBounds declares the domain of the apply.
func (v ApplyOp) SetBounds(b Bounds) { v.payload().Domain = &b }

// Operation returns the underlying operation.
func (v CombineOp) Operation() *Operation { return v.op }

func (v CombineOp) payload() *Combine { return v.op.Op().(*Combine) }

// Dim returns the axis the combine splits.
func (v CombineOp) Dim() int { return v.payload().Dim }

// Index returns the coordinate the combine splits at.
func (v CombineOp) Index() int64 { return v.payload().Index }

// Lower returns the operands computing the results below the split.
func (v CombineOp) Lower() []Value {
	p := v.payload()
	return v.op.Operands()[:p.NLower]
}

// Upper returns the operands computing the results above the split.
func (v CombineOp) Upper() []Value {
	p := v.payload()
	return v.op.Operands()[p.NLower : 2*p.NLower]
}

// LowerExt returns the extra operands only the lower side produces.
func (v CombineOp) LowerExt() []Value {
	p := v.payload()
	return v.op.Operands()[2*p.NLower : 2*p.NLower+p.NLowerExt]
}

// UpperExt returns the extra operands only the upper side produces.
func (v CombineOp) UpperExt() []Value {
	p := v.payload()
	return v.op.Operands()[2*p.NLower+p.NLowerExt:]
}

// NumExtra returns the number of extra operands of the combine.
func (v CombineOp) NumExtra() int {
	p := v.payload()
	return p.NLowerExt + p.NUpperExt
}

// HasBounds returns true if the domain of the combine has been declared.
func (v CombineOp) HasBounds() bool { return v.payload().Domain != nil }

// Bounds returns the declared domain of the combine.
func (v CombineOp) Bounds() Bounds { return *v.payload().Domain }

// SetBounds declares the domain of the combine.
func (v CombineOp) SetBounds(b Bounds) { v.payload().Domain = &b }

// LowerDefiningOps returns the operations defining the lower side
// operands, deduplicated in operand order.
func (v CombineOp) LowerDefiningOps() []*Operation {
	return definingOps(v.op.Func(), v.Lower(), v.LowerExt())
}

// UpperDefiningOps returns the operations defining the upper side
// operands, deduplicated in operand order.
func (v CombineOp) UpperDefiningOps() []*Operation {
	return definingOps(v.op.Func(), v.Upper(), v.UpperExt())
}

// TreeRoot returns the topmost combine of the tree of combines the
// results of this combine feed into.
func (v CombineOp) TreeRoot() CombineOp {
	root := v
	for {
		next, ok := root.userCombine()
		if !ok {
			return root
		}
		root = next
	}
}

func (v CombineOp) userCombine() (CombineOp, bool) {
	fn := v.op.Func()
	for _, res := range v.op.Results() {
		for _, use := range fn.Uses(res) {
			user := fn.Op(use.Owner)
			if user == nil {
				continue
			}
			if combine, ok := AsCombine(user); ok {
				return combine, true
			}
		}
	}
	return CombineOp{}, false
}

func definingOps(fn *Func, groups ...[]Value) []*Operation {
	set := ordered.NewMap[OpID, *Operation]()
	for val := range iter.All(groups...) {
		def := fn.DefiningOp(val)
		if def == nil {
			continue
		}
		set.Store(def.ID(), def)
	}
	var ops []*Operation
	for op := range set.Values() {
		ops = append(ops, op)
	}
	return ops
}

// Operation returns the underlying operation.
func (v ReturnOp) Operation() *Operation { return v.op }

func (v ReturnOp) payload() *Return { return v.op.Op().(*Return) }

// Unroll returns the per-axis unroll configuration of the return,
// or nil if the kernel is not unrolled.
func (v ReturnOp) Unroll() Index { return v.payload().Unroll }

// UnrollFactor returns the number of iterations each result slot of
// the return carries a value for.
func (v ReturnOp) UnrollFactor() int64 {
	return unrollFactor(v.payload().Unroll)
}

// UnrollDim returns the axis the kernel is unrolled on,
// or -1 if the kernel is not unrolled.
func (v ReturnOp) UnrollDim() int {
	for i, f := range v.payload().Unroll {
		if f != 1 {
			return i
		}
	}
	return -1
}

// SameUnroll returns true if both returns have the same unroll
// configuration.
func (v ReturnOp) SameUnroll(other ReturnOp) bool {
	return v.UnrollFactor() == other.UnrollFactor() && v.UnrollDim() == other.UnrollDim()
}

func unrollFactor(unroll Index) int64 {
	factor := int64(1)
	for _, f := range unroll {
		factor *= f
	}
	return factor
}

// Operation returns the underlying operation.
func (v CondOp) Operation() *Operation { return v.op }

// Cond returns the boolean operand selecting the block to run.
func (v CondOp) Cond() Value { return v.op.Operand(0) }

// Then returns the block run when the condition holds.
func (v CondOp) Then() *Block { return v.op.Block(0) }

// Else returns the block run when the condition does not hold.
func (v CondOp) Else() *Block { return v.op.Block(1) }
