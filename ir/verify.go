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
	"slices"

	"github.com/gx-org/stencil/fmterr"
	"go.uber.org/multierr"
	"golang.org/x/exp/maps"
)

// Verify checks that the function is a well formed stencil graph:
// structural integrity first, then the typing and domain rules of every
// operation. All violations are reported together.
func Verify(fn *Func) error {
	v := &verifier{fn: fn}
	v.structural()
	if v.errs != nil {
		return v.errs
	}
	fn.Walk(func(op *Operation) bool {
		v.verifyOp(op)
		return true
	})
	v.verifyFieldAccesses()
	return v.errs
}

type verifier struct {
	fn   *Func
	errs error
}

func (v *verifier) errorf(at fmterr.At, format string, a ...any) {
	v.errs = multierr.Append(v.errs, fmterr.Errorf(at, format, a...))
}

func (v *verifier) append(at fmterr.At, err error) {
	v.errs = multierr.Append(v.errs, fmterr.Position(at, err))
}

// structural checks that every operand is visible at its use and that
// the use lists of all values are consistent with the operand slots.
func (v *verifier) structural() {
	visible := make(map[Value]bool)
	for _, param := range v.fn.body.Params() {
		visible[param] = true
	}
	v.checkBlock(v.fn.body, visible)
	v.checkUseLists()
}

func (v *verifier) checkBlock(b *Block, visible map[Value]bool) {
	for op := range b.Operations() {
		for i, operand := range op.Operands() {
			if v.fn.state(operand) == nil {
				v.errorf(op, "operand %d is not a value of the function", i)
				continue
			}
			if !visible[operand] {
				v.errorf(op, "operand %d is used before being defined", i)
			}
		}
		for i := range op.NumBlocks() {
			blk := op.Block(i)
			inner := make(map[Value]bool)
			if _, isolated := op.Op().(*Apply); !isolated {
				maps.Copy(inner, visible)
			}
			for _, param := range blk.Params() {
				inner[param] = true
			}
			v.checkBlock(blk, inner)
		}
		for _, res := range op.Results() {
			visible[res] = true
		}
	}
}

func (v *verifier) checkUseLists() {
	recorded := make(map[Use]Value)
	for i := range v.fn.vals {
		val := Value(i)
		for _, use := range v.fn.Uses(val) {
			owner := v.fn.Op(use.Owner)
			if owner == nil || use.Index >= owner.NumOperands() || owner.Operand(use.Index) != val {
				v.errorf(v.fn.body.anchor(), "use list of value %%%d records a stale use", int(val))
				continue
			}
			recorded[use] = val
		}
	}
	v.fn.Walk(func(op *Operation) bool {
		for i, operand := range op.Operands() {
			if recorded[Use{Owner: op.ID(), Index: i}] != operand {
				v.errorf(op, "operand %d is missing from the use list of its value", i)
			}
		}
		return true
	})
}

// anchor returns an operation to attach block level errors to.
func (b *Block) anchor() fmterr.At {
	if op := b.Terminator(); op != nil {
		return op
	}
	return b.fn
}

func (v *verifier) verifyOp(op *Operation) {
	switch op.Op().(type) {
	case *Cast:
		v.verifyCast(op)
	case *Load:
		v.verifyLoad(op)
	case *Buffer:
		v.verifyBuffer(op)
	case *Store:
		v.verifyStore(op)
	case *Apply:
		v.verifyApply(op)
	case *Combine:
		if err := verifyCombine(op); err != nil {
			v.errs = multierr.Append(v.errs, err)
		}
		v.checkCovered(op)
	case *Access:
		v.verifyAccess(op)
	case *DynAccess:
		v.verifyDynAccess(op)
	case *Pos:
		v.verifyPos(op)
	case *StoreResult:
		v.verifyStoreResult(op)
	case *Return:
		v.verifyReturn(op)
	case *Constant:
		v.verifyConstant(op)
	case *Cmp:
		v.verifyCmp(op)
	case *Cond:
		v.verifyCond(op)
	case *Yield:
		v.verifyYield(op)
	}
}

// checkCovered checks that the declared domain of a producer covers the
// union of the domains its consumers require.
func (v *verifier) checkCovered(op *Operation) {
	so, ok := AsShapeOp(op)
	if !ok || !so.HasBounds() || op.NumResults() == 0 {
		return
	}
	required, ok, err := RequiredBounds(v.fn, op.Results()...)
	if err != nil {
		v.append(op, err)
		return
	}
	if !ok {
		return
	}
	if !so.Bounds().Covers(required) {
		v.errorf(op, "domain %s does not cover the domain %s its consumers require", so.Bounds().String(), required.String())
	}
}

func (v *verifier) gridOperand(op *Operation, i int) (GridType, bool) {
	typ := v.fn.ValueType(op.Operand(i))
	grid, ok := typ.(GridType)
	if !ok {
		v.errorf(op, "operand %d has type %s: want a grid type", i, typ.String())
		return nil, false
	}
	return grid, true
}

func (v *verifier) verifyCast(op *Operation) {
	cast, _ := AsCast(op)
	if op.NumOperands() != 1 || op.NumResults() != 1 {
		v.errorf(op, "cast wants exactly one operand and one result")
		return
	}
	from, ok := v.fn.ValueType(cast.Field()).(*FieldType)
	if !ok {
		v.errorf(op, "cast operand has type %s: want a field type", v.fn.ValueType(cast.Field()).String())
		return
	}
	to, ok := v.fn.ValueType(cast.Res()).(*FieldType)
	if !ok {
		v.errorf(op, "cast result has type %s: want a field type", v.fn.ValueType(cast.Res()).String())
		return
	}
	if !from.HasDynamicShape() {
		v.errorf(op, "cast operand %s is already statically shaped", from.String())
	}
	if to.HasDynamicShape() {
		v.errorf(op, "cast result %s must be statically shaped", to.String())
	}
	if from.ElementType() != to.ElementType() {
		v.errorf(op, "cast changes the element type from %s to %s", Kind(from.ElementType()), Kind(to.ElementType()))
	}
	if from.Allocation() != to.Allocation() {
		v.errorf(op, "cast changes the allocation from %s to %s", from.Allocation().String(), to.Allocation().String())
	}
	if from.Rank() != to.Rank() {
		v.errorf(op, "cast changes the rank from %d to %d", from.Rank(), to.Rank())
		return
	}
	domain := cast.Bounds()
	if err := domain.Check(); err != nil {
		v.append(op, err)
		return
	}
	if domain.Rank() != to.Rank() {
		v.errorf(op, "cast domain has rank %d but the field has rank %d", domain.Rank(), to.Rank())
		return
	}
	if !to.HasDynamicShape() && !slices.Equal(to.Shape(), domain.Shape()) {
		v.errorf(op, "cast result shape %s does not match the domain %s", to.String(), domain.String())
	}
	v.checkCovered(op)
}

// castOf returns the cast defining a field value.
func castOf(fn *Func, field Value) (CastOp, bool) {
	def := fn.DefiningOp(field)
	if def == nil {
		return CastOp{}, false
	}
	return AsCast(def)
}

func (v *verifier) verifyLoad(op *Operation) {
	load, _ := AsLoad(op)
	if op.NumOperands() != 1 || op.NumResults() != 1 {
		v.errorf(op, "load wants exactly one operand and one result")
		return
	}
	field, ok := v.fn.ValueType(load.Field()).(*FieldType)
	if !ok {
		v.errorf(op, "load operand has type %s: want a field type", v.fn.ValueType(load.Field()).String())
		return
	}
	if field.HasDynamicShape() {
		v.errorf(op, "load reads a dynamically shaped field: cast it first")
	}
	cast, fromCast := castOf(v.fn, load.Field())
	if !fromCast {
		v.errorf(op, "load operand is not the result of a cast")
	}
	temp, ok := v.fn.ValueType(load.Temp()).(*TempType)
	if !ok {
		v.errorf(op, "load result has type %s: want a temp type", v.fn.ValueType(load.Temp()).String())
		return
	}
	if field.ElementType() != temp.ElementType() {
		v.errorf(op, "load changes the element type from %s to %s", Kind(field.ElementType()), Kind(temp.ElementType()))
	}
	if field.Allocation() != temp.Allocation() {
		v.errorf(op, "load changes the allocation from %s to %s", field.Allocation().String(), temp.Allocation().String())
	}
	if field.Rank() != temp.Rank() {
		v.errorf(op, "load changes the rank from %d to %d", field.Rank(), temp.Rank())
		return
	}
	if !load.HasBounds() {
		return
	}
	domain := load.Bounds()
	if err := domain.Check(); err != nil {
		v.append(op, err)
		return
	}
	if fromCast && !cast.Bounds().Covers(domain) {
		v.errorf(op, "load domain %s is outside the field domain %s", domain.String(), cast.Bounds().String())
	}
	if !temp.HasDynamicShape() && !slices.Equal(temp.Shape(), domain.Shape()) {
		v.errorf(op, "load result shape %s does not match the domain %s", temp.String(), domain.String())
	}
	v.checkCovered(op)
}

func (v *verifier) verifyBuffer(op *Operation) {
	buffer, _ := AsBuffer(op)
	if op.NumOperands() != 1 || op.NumResults() != 1 {
		v.errorf(op, "buffer wants exactly one operand and one result")
		return
	}
	from, ok := v.gridOperand(op, 0)
	if !ok {
		return
	}
	to, ok := v.fn.ValueType(buffer.Res()).(*TempType)
	if !ok {
		v.errorf(op, "buffer result has type %s: want a temp type", v.fn.ValueType(buffer.Res()).String())
		return
	}
	if from.ElementType() != to.ElementType() {
		v.errorf(op, "buffer changes the element type from %s to %s", Kind(from.ElementType()), Kind(to.ElementType()))
	}
	if from.Allocation() != to.Allocation() {
		v.errorf(op, "buffer changes the allocation from %s to %s", from.Allocation().String(), to.Allocation().String())
	}
	if from.Rank() != to.Rank() {
		v.errorf(op, "buffer changes the rank from %d to %d", from.Rank(), to.Rank())
		return
	}
	def := v.fn.DefiningOp(buffer.Temp())
	if def == nil || !producesTemp(def) {
		v.errorf(op, "buffer operand is not produced by an apply or a combine")
	}
	for _, use := range v.fn.Uses(buffer.Temp()) {
		user := v.fn.Op(use.Owner)
		if user == nil {
			continue
		}
		if _, isBuffer := user.Op().(*Buffer); !isBuffer {
			v.errorf(op, "buffered value is also consumed by %s: all consumers must be buffers", user.Name())
		}
	}
	if !buffer.HasBounds() {
		return
	}
	domain := buffer.Bounds()
	if err := domain.Check(); err != nil {
		v.append(op, err)
		return
	}
	if !to.HasDynamicShape() && !slices.Equal(to.Shape(), domain.Shape()) {
		v.errorf(op, "buffer result shape %s does not match the domain %s", to.String(), domain.String())
	}
	v.checkCovered(op)
}

func producesTemp(op *Operation) bool {
	switch op.Op().(type) {
	case *Apply, *Combine:
		return true
	}
	return false
}

func (v *verifier) verifyStore(op *Operation) {
	store, _ := AsStore(op)
	if op.NumOperands() != 2 || op.NumResults() != 0 {
		v.errorf(op, "store wants exactly two operands and no result")
		return
	}
	temp, ok := v.fn.ValueType(store.Temp()).(*TempType)
	if !ok {
		v.errorf(op, "store operand has type %s: want a temp type", v.fn.ValueType(store.Temp()).String())
		return
	}
	field, ok := v.fn.ValueType(store.Field()).(*FieldType)
	if !ok {
		v.errorf(op, "store target has type %s: want a field type", v.fn.ValueType(store.Field()).String())
		return
	}
	if field.HasDynamicShape() {
		v.errorf(op, "store writes a dynamically shaped field: cast it first")
	}
	cast, fromCast := castOf(v.fn, store.Field())
	if !fromCast {
		v.errorf(op, "store target is not the result of a cast")
	}
	if temp.ElementType() != field.ElementType() {
		v.errorf(op, "store changes the element type from %s to %s", Kind(temp.ElementType()), Kind(field.ElementType()))
	}
	if temp.Allocation() != field.Allocation() {
		v.errorf(op, "store changes the allocation from %s to %s", temp.Allocation().String(), field.Allocation().String())
	}
	if temp.Rank() != field.Rank() {
		v.errorf(op, "store changes the rank from %d to %d", temp.Rank(), field.Rank())
		return
	}
	def := v.fn.DefiningOp(store.Temp())
	if def == nil || !producesTemp(def) {
		v.errorf(op, "store operand is not produced by an apply or a combine")
	}
	if !store.HasBounds() {
		v.errorf(op, "store has no domain")
		return
	}
	domain := store.Bounds()
	if err := domain.Check(); err != nil {
		v.append(op, err)
		return
	}
	if fromCast && !cast.Bounds().Covers(domain) {
		v.errorf(op, "store domain %s is outside the field domain %s", domain.String(), cast.Bounds().String())
	}
}

// verifyFieldAccesses checks that each field is written by at most one
// store and never both loaded and stored. Casts of a field alias it.
func (v *verifier) verifyFieldAccesses() {
	writers := make(map[Value][]*Operation)
	readers := make(map[Value]bool)
	v.fn.Walk(func(op *Operation) bool {
		switch op.Op().(type) {
		case *Store:
			store, _ := AsStore(op)
			root := rootField(v.fn, store.Field())
			writers[root] = append(writers[root], op)
		case *Load:
			load, _ := AsLoad(op)
			readers[rootField(v.fn, load.Field())] = true
		}
		return true
	})
	fields := maps.Keys(writers)
	slices.Sort(fields)
	for _, field := range fields {
		stores := writers[field]
		for _, op := range stores[1:] {
			v.errorf(op, "field is written by more than one store")
		}
		if readers[field] {
			v.errorf(stores[0], "field is both loaded and stored")
		}
	}
}

// rootField walks through casts to the underlying field value.
func rootField(fn *Func, field Value) Value {
	for {
		def := fn.DefiningOp(field)
		if def == nil {
			return field
		}
		cast, ok := AsCast(def)
		if !ok {
			return field
		}
		field = cast.Field()
	}
}

func (v *verifier) verifyApply(op *Operation) {
	apply, _ := AsApply(op)
	if op.NumBlocks() != 1 {
		v.errorf(op, "apply wants exactly one kernel block")
		return
	}
	body := apply.Body()
	if body.NumParams() != op.NumOperands() {
		v.errorf(op, "kernel has %d parameter(s) for %d operand(s)", body.NumParams(), op.NumOperands())
		return
	}
	for i, operand := range op.Operands() {
		operandT := v.fn.ValueType(operand)
		paramT := v.fn.ValueType(body.Param(i))
		if !operandT.Equal(paramT) {
			v.errorf(op, "kernel parameter %d has type %s but the operand has type %s", i, paramT.String(), operandT.String())
		}
	}
	if _, ok := apply.Ret(); !ok {
		v.errorf(op, "kernel does not end with a return")
	}
	if !apply.HasBounds() {
		return
	}
	domain := apply.Bounds()
	if err := domain.Check(); err != nil {
		v.append(op, err)
		return
	}
	for i, res := range op.Results() {
		temp, ok := v.fn.ValueType(res).(*TempType)
		if !ok {
			v.errorf(op, "apply result %d has type %s: want a temp type", i, v.fn.ValueType(res).String())
			continue
		}
		if temp.Rank() != domain.Rank() {
			v.errorf(op, "apply result %d has rank %d but the domain has rank %d", i, temp.Rank(), domain.Rank())
			continue
		}
		if !temp.HasDynamicShape() && !slices.Equal(temp.Shape(), domain.Shape()) {
			v.errorf(op, "apply result %d has shape %s but the domain is %s", i, temp.String(), domain.String())
		}
	}
	v.checkCovered(op)
}

// verifyCombine checks the invariants of a combine operation: operand
// packing, split axis, and the element type consistency between both
// sides and the results.
func verifyCombine(op *Operation) error {
	combine, _ := AsCombine(op)
	fn := op.Func()
	p := combine.payload()
	var errs fmterr.Errors
	if p.NLower < 0 || p.NLowerExt < 0 || p.NUpperExt < 0 {
		errs.Appendf(op, "combine has negative operand group sizes")
		return errs.ToError()
	}
	if got, want := op.NumOperands(), 2*p.NLower+p.NLowerExt+p.NUpperExt; got != want {
		errs.Appendf(op, "combine has %d operand(s) but its groups pack %d", got, want)
		return errs.ToError()
	}
	if got, want := op.NumResults(), p.NLower+p.NLowerExt+p.NUpperExt; got != want {
		errs.Appendf(op, "combine has %d result(s) but its operands call for %d", got, want)
		return errs.ToError()
	}
	if op.NumOperands() == 0 {
		errs.Appendf(op, "combine has no operands")
		return errs.ToError()
	}
	rank := -1
	for i, operand := range op.Operands() {
		temp, ok := fn.ValueType(operand).(*TempType)
		if !ok {
			errs.Appendf(op, "combine operand %d has type %s: want a temp type", i, fn.ValueType(operand).String())
			return errs.ToError()
		}
		if rank < 0 {
			rank = temp.Rank()
		} else if temp.Rank() != rank {
			errs.Appendf(op, "combine operand %d has rank %d but the combine has rank %d", i, temp.Rank(), rank)
			return errs.ToError()
		}
	}
	if p.Dim < 0 || p.Dim >= rank {
		errs.Appendf(op, "combine splits axis %d of a rank %d domain", p.Dim, rank)
	}
	elemOf := func(v Value) string {
		elem, err := ElementTypeOf(fn.ValueType(v))
		if err != nil {
			return "invalid"
		}
		return Kind(elem).String()
	}
	lower, upper := combine.Lower(), combine.Upper()
	results := op.Results()
	for i := range lower {
		le, ue, re := elemOf(lower[i]), elemOf(upper[i]), elemOf(results[i])
		if le != ue {
			errs.Appendf(op, "combine operand %d has element type %s below the split and %s above", i, le, ue)
		}
		if le != re {
			errs.Appendf(op, "combine result %d has element type %s but its operands have %s", i, re, le)
		}
	}
	for i, ext := range combine.LowerExt() {
		if ee, re := elemOf(ext), elemOf(results[p.NLower+i]); ee != re {
			errs.Appendf(op, "combine result %d has element type %s but the lower extra has %s", p.NLower+i, re, ee)
		}
	}
	for i, ext := range combine.UpperExt() {
		if ee, re := elemOf(ext), elemOf(results[p.NLower+p.NLowerExt+i]); ee != re {
			errs.Appendf(op, "combine result %d has element type %s but the upper extra has %s", p.NLower+p.NLowerExt+i, re, ee)
		}
	}
	if combine.HasBounds() {
		if err := combine.Bounds().Check(); err != nil {
			errs.Append(fmterr.Position(op, err))
		} else if combine.Bounds().Rank() != rank {
			errs.Appendf(op, "combine domain has rank %d but its operands have rank %d", combine.Bounds().Rank(), rank)
		}
	}
	return errs.ToError()
}

func (v *verifier) verifyAccess(op *Operation) {
	access := op.Op().(*Access)
	if op.NumOperands() != 1 || op.NumResults() != 1 {
		v.errorf(op, "access wants exactly one operand and one result")
		return
	}
	if _, ok := enclosingApply(op); !ok {
		v.errorf(op, "access outside of a kernel")
	}
	temp, ok := v.fn.ValueType(op.Operand(0)).(*TempType)
	if !ok {
		v.errorf(op, "access operand has type %s: want a temp type", v.fn.ValueType(op.Operand(0)).String())
		return
	}
	if access.Offset.Rank() != temp.Rank() {
		v.errorf(op, "access offset has rank %d but the temp has rank %d", access.Offset.Rank(), temp.Rank())
	}
	v.checkScalarResult(op, temp)
}

func (v *verifier) verifyDynAccess(op *Operation) {
	dyn := op.Op().(*DynAccess)
	if op.NumOperands() < 1 || op.NumResults() != 1 {
		v.errorf(op, "dyn_access wants a temp operand and one result")
		return
	}
	if _, ok := enclosingApply(op); !ok {
		v.errorf(op, "dyn_access outside of a kernel")
	}
	temp, ok := v.fn.ValueType(op.Operand(0)).(*TempType)
	if !ok {
		v.errorf(op, "dyn_access operand has type %s: want a temp type", v.fn.ValueType(op.Operand(0)).String())
		return
	}
	if err := dyn.Range.Check(); err != nil {
		v.append(op, err)
		return
	}
	if dyn.Range.Rank() != temp.Rank() {
		v.errorf(op, "dyn_access range has rank %d but the temp has rank %d", dyn.Range.Rank(), temp.Rank())
	}
	if got, want := op.NumOperands()-1, temp.Rank(); got != want {
		v.errorf(op, "dyn_access has %d position operand(s) for a rank %d temp", got, want)
	}
	for i := 1; i < op.NumOperands(); i++ {
		if _, ok := v.fn.ValueType(op.Operand(i)).(*IndexType); !ok {
			v.errorf(op, "dyn_access position %d has type %s: want an index", i-1, v.fn.ValueType(op.Operand(i)).String())
		}
	}
	v.checkScalarResult(op, temp)
}

func (v *verifier) checkScalarResult(op *Operation, temp *TempType) {
	scalar, ok := v.fn.ValueType(op.Result(0)).(*ScalarType)
	if !ok {
		v.errorf(op, "%s result has type %s: want a scalar", op.Name(), v.fn.ValueType(op.Result(0)).String())
		return
	}
	if scalar.DType != temp.ElementType() {
		v.errorf(op, "%s result has type %s but the temp holds %s", op.Name(), scalar.String(), Kind(temp.ElementType()))
	}
}

func (v *verifier) verifyPos(op *Operation) {
	pos := op.Op().(*Pos)
	if op.NumOperands() != 0 || op.NumResults() != 1 {
		v.errorf(op, "index wants no operand and one result")
		return
	}
	apply, ok := enclosingApply(op)
	if !ok {
		v.errorf(op, "index outside of a kernel")
		return
	}
	rank := pos.Offset.Rank()
	if apply.HasBounds() {
		rank = apply.Bounds().Rank()
	}
	if pos.Dim < 0 || pos.Dim >= rank {
		v.errorf(op, "index reads axis %d of a rank %d domain", pos.Dim, rank)
	}
	if pos.Offset.Rank() != rank {
		v.errorf(op, "index offset has rank %d but the domain has rank %d", pos.Offset.Rank(), rank)
	}
	if _, ok := v.fn.ValueType(op.Result(0)).(*IndexType); !ok {
		v.errorf(op, "index result has type %s: want an index", v.fn.ValueType(op.Result(0)).String())
	}
}

func (v *verifier) verifyStoreResult(op *Operation) {
	if op.NumOperands() > 1 || op.NumResults() != 1 {
		v.errorf(op, "store_result wants at most one operand and one result")
		return
	}
	res, ok := v.fn.ValueType(op.Result(0)).(*ResultType)
	if !ok {
		v.errorf(op, "store_result result has type %s: want a result type", v.fn.ValueType(op.Result(0)).String())
		return
	}
	if op.NumOperands() == 1 {
		elem, err := ElementTypeOf(v.fn.ValueType(op.Operand(0)))
		if err != nil {
			v.append(op, err)
		} else if elem != res.ElementType() {
			v.errorf(op, "store_result wraps a %s value in a %s slot", Kind(elem), Kind(res.ElementType()))
		}
	}
	apply, ok := enclosingApply(op)
	if !ok {
		v.errorf(op, "store_result outside of a kernel")
		return
	}
	ret, ok := apply.Ret()
	if !ok {
		return
	}
	v.checkSlot(op, ret)
}

// checkSlot checks that the value of a store_result maps to exactly one
// result slot of the kernel return, directly or through the yields of a
// conditional.
func (v *verifier) checkSlot(op *Operation, ret ReturnOp) {
	factor := int(ret.UnrollFactor())
	if factor <= 0 {
		return
	}
	slot := -1
	for _, use := range v.fn.Uses(op.Result(0)) {
		user := v.fn.Op(use.Owner)
		if user == nil {
			continue
		}
		switch user.Op().(type) {
		case *Return, *Yield:
		default:
			v.errorf(op, "store_result value is consumed by %s: want a return or a yield", user.Name())
			return
		}
		useSlot := use.Index / factor
		if slot < 0 {
			slot = useSlot
			continue
		}
		if useSlot != slot {
			v.errorf(op, "store_result value maps to result slots %d and %d", slot, useSlot)
			return
		}
	}
	if slot < 0 {
		v.errorf(op, "store_result value does not reach a result slot")
	}
}

func (v *verifier) verifyReturn(op *Operation) {
	ret, _ := AsReturn(op)
	if op.NumResults() != 0 {
		v.errorf(op, "return wants no result")
		return
	}
	parent := op.Parent()
	if parent == nil || parent.Owner() == nil {
		v.errorf(op, "return outside of a kernel")
		return
	}
	apply, ok := AsApply(parent.Owner())
	if !ok {
		v.errorf(op, "return outside of a kernel")
		return
	}
	if parent.Terminator() != op {
		v.errorf(op, "return is not the last operation of the kernel")
	}
	unroll := ret.Unroll()
	if unroll != nil {
		if apply.HasBounds() && unroll.Rank() != apply.Bounds().Rank() {
			v.errorf(op, "unroll configuration has rank %d but the domain has rank %d", unroll.Rank(), apply.Bounds().Rank())
			return
		}
		unrolled := 0
		for i, f := range unroll {
			if f < 1 {
				v.errorf(op, "unroll factor %d on axis %d: want at least 1", f, i)
				return
			}
			if f > 1 {
				unrolled++
			}
		}
		if unrolled > 1 {
			v.errorf(op, "kernel is unrolled on %d axes: want at most one", unrolled)
			return
		}
	}
	factor := int(ret.UnrollFactor())
	applyOp := apply.Operation()
	if got, want := op.NumOperands(), applyOp.NumResults()*factor; got != want {
		v.errorf(op, "return has %d operand(s) for %d result slot(s) unrolled %d time(s)", got, applyOp.NumResults(), factor)
		return
	}
	for i, operand := range op.Operands() {
		res, ok := v.fn.ValueType(operand).(*ResultType)
		if !ok {
			v.errorf(op, "return operand %d has type %s: want a result type", i, v.fn.ValueType(operand).String())
			continue
		}
		slot := i / factor
		elem, err := ElementTypeOf(v.fn.ValueType(applyOp.Result(slot)))
		if err != nil {
			v.append(op, err)
			continue
		}
		if res.ElementType() != elem {
			v.errorf(op, "return operand %d has element type %s but result slot %d holds %s", i, Kind(res.ElementType()), slot, Kind(elem))
		}
	}
}

func (v *verifier) verifyConstant(op *Operation) {
	if op.NumOperands() != 0 || op.NumResults() != 1 {
		v.errorf(op, "constant wants no operand and one result")
		return
	}
	if _, ok := v.fn.ValueType(op.Result(0)).(*IndexType); !ok {
		v.errorf(op, "constant result has type %s: want an index", v.fn.ValueType(op.Result(0)).String())
	}
}

func (v *verifier) verifyCmp(op *Operation) {
	cmp := op.Op().(*Cmp)
	if op.NumOperands() != 2 || op.NumResults() != 1 {
		v.errorf(op, "cmp wants two operands and one result")
		return
	}
	if cmp.Pred != ULT {
		v.errorf(op, "cmp predicate %d is not supported", int(cmp.Pred))
	}
	for i := range 2 {
		if _, ok := v.fn.ValueType(op.Operand(i)).(*IndexType); !ok {
			v.errorf(op, "cmp operand %d has type %s: want an index", i, v.fn.ValueType(op.Operand(i)).String())
		}
	}
	if !v.fn.ValueType(op.Result(0)).Equal(BoolType) {
		v.errorf(op, "cmp result has type %s: want %s", v.fn.ValueType(op.Result(0)).String(), BoolType.String())
	}
}

func (v *verifier) verifyCond(op *Operation) {
	cond, _ := AsCond(op)
	if op.NumOperands() != 1 {
		v.errorf(op, "if wants exactly one operand")
		return
	}
	if op.NumBlocks() != 2 {
		v.errorf(op, "if wants exactly two blocks")
		return
	}
	if !v.fn.ValueType(cond.Cond()).Equal(BoolType) {
		v.errorf(op, "if condition has type %s: want %s", v.fn.ValueType(cond.Cond()).String(), BoolType.String())
	}
	for i, blk := range []*Block{cond.Then(), cond.Else()} {
		if blk.NumParams() != 0 {
			v.errorf(op, "branch %d takes %d parameter(s): want none", i, blk.NumParams())
			continue
		}
		term := blk.Terminator()
		if term == nil {
			v.errorf(op, "branch %d does not end with a yield", i)
			continue
		}
		if _, ok := term.Op().(*Yield); !ok {
			v.errorf(op, "branch %d ends with %s: want a yield", i, term.Name())
			continue
		}
		if term.NumOperands() != op.NumResults() {
			v.errorf(op, "branch %d yields %d value(s) for %d result(s)", i, term.NumOperands(), op.NumResults())
			continue
		}
		for j, operand := range term.Operands() {
			yt := v.fn.ValueType(operand)
			rt := v.fn.ValueType(op.Result(j))
			if !yt.Equal(rt) {
				v.errorf(op, "branch %d yields a %s value for a %s result", i, yt.String(), rt.String())
			}
		}
	}
}

func (v *verifier) verifyYield(op *Operation) {
	if op.NumResults() != 0 {
		v.errorf(op, "yield wants no result")
		return
	}
	parent := op.Parent()
	if parent == nil || parent.Owner() == nil {
		v.errorf(op, "yield outside of a conditional")
		return
	}
	if _, ok := parent.Owner().Op().(*Cond); !ok {
		v.errorf(op, "yield outside of a conditional")
		return
	}
	if parent.Terminator() != op {
		v.errorf(op, "yield is not the last operation of its branch")
	}
}

// enclosingApply returns the apply whose kernel contains the operation.
func enclosingApply(op *Operation) (ApplyOp, bool) {
	blk := op.Parent()
	for blk != nil {
		owner := blk.Owner()
		if owner == nil {
			return ApplyOp{}, false
		}
		if apply, ok := AsApply(owner); ok {
			return apply, true
		}
		blk = owner.Parent()
	}
	return ApplyOp{}, false
}
