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

// Package ir defines the stencil intermediate representation:
// a data-flow graph of operations over rectangular iteration domains,
// together with the bounds algebra and the verification rules
// transformation passes rely on.
//
// Operations and values live in arenas owned by a Func and are addressed
// by integer handles. Mutating the graph goes through a Builder and the
// Func mutation methods so that use lists stay consistent.
package ir

import (
	"fmt"
	"iter"
	"slices"

	"github.com/gx-org/stencil/fmterr"
	"github.com/pkg/errors"
)

type (
	// OpID is the handle of an operation in the arena of its Func.
	OpID int

	// Value is the handle of an SSA value in the arena of its Func.
	Value int

	// Use records one operand slot of an operation reading a value.
	Use struct {
		// Owner is the operation reading the value.
		Owner OpID
		// Index is the operand slot reading the value.
		Index int
	}
)

// Invalid handles.
const (
	InvalidOp    = OpID(-1)
	InvalidValue = Value(-1)
)

type (
	// Func is a compilation unit: an arena of operations and values
	// forming a data-flow graph rooted at a body block.
	Func struct {
		name    string
		program bool
		ops     []*Operation
		vals    []*valueState
		body    *Block
	}

	// Operation is a node of the graph: a variant payload plus its
	// operand values, result values, and owned blocks.
	Operation struct {
		fn       *Func
		id       OpID
		op       Op
		operands []Value
		results  []Value
		blocks   []*Block
		block    *Block
		dead     bool
	}

	// Block is an ordered list of operations with typed parameters.
	// The body of a Func is a block; regions of an operation are blocks.
	Block struct {
		fn     *Func
		owner  *Operation
		params []Value
		ops    []OpID
	}

	valueState struct {
		typ   Type
		def   OpID
		index int
		owner *Block
		uses  []Use
	}
)

var (
	_ fmterr.At = (*Func)(nil)
	_ fmterr.At = (*Operation)(nil)
)

// NewFunc returns an empty function with the given name.
func NewFunc(name string) *Func {
	fn := &Func{name: name}
	fn.body = &Block{fn: fn}
	return fn
}

// Name returns the name of the function.
func (fn *Func) Name() string {
	return fn.name
}

// Where returns the name of the function to locate errors.
func (fn *Func) Where() string {
	return fn.name
}

// SetProgram marks the function as a stencil program.
// Passes only process functions carrying the mark.
func (fn *Func) SetProgram(program bool) {
	fn.program = program
}

// IsProgram returns true if the function is a stencil program.
func (fn *Func) IsProgram() bool {
	return fn.program
}

// Body returns the top-level block of the function.
func (fn *Func) Body() *Block {
	return fn.body
}

// Op returns the operation with the given handle,
// or nil if the handle is invalid or the operation has been erased.
func (fn *Func) Op(id OpID) *Operation {
	if id < 0 || int(id) >= len(fn.ops) {
		return nil
	}
	op := fn.ops[id]
	if op.dead {
		return nil
	}
	return op
}

// NumOps returns the number of live operations of the function.
func (fn *Func) NumOps() int {
	n := 0
	for _, op := range fn.ops {
		if !op.dead {
			n++
		}
	}
	return n
}

// Walk visits every live operation of the function in pre-order,
// descending into the blocks of each operation.
// It stops and returns false as soon as visit returns false.
func (fn *Func) Walk(visit func(*Operation) bool) bool {
	return fn.body.walk(visit)
}

// Operations returns all live operations of the function in walk order.
func (fn *Func) Operations() []*Operation {
	var all []*Operation
	fn.Walk(func(op *Operation) bool {
		all = append(all, op)
		return true
	})
	return all
}

func (fn *Func) newValue(typ Type, def OpID, index int, owner *Block) Value {
	v := Value(len(fn.vals))
	fn.vals = append(fn.vals, &valueState{typ: typ, def: def, index: index, owner: owner})
	return v
}

func (fn *Func) state(v Value) *valueState {
	if v < 0 || int(v) >= len(fn.vals) {
		return nil
	}
	return fn.vals[v]
}

// ValueType returns the type of a value, or nil for an invalid handle.
func (fn *Func) ValueType(v Value) Type {
	st := fn.state(v)
	if st == nil {
		return nil
	}
	return st.typ
}

// SetValueType replaces the type of a value.
func (fn *Func) SetValueType(v Value, typ Type) {
	if st := fn.state(v); st != nil {
		st.typ = typ
	}
}

// DefiningOp returns the operation defining a value,
// or nil for block parameters and invalid handles.
func (fn *Func) DefiningOp(v Value) *Operation {
	st := fn.state(v)
	if st == nil {
		return nil
	}
	return fn.Op(st.def)
}

// Uses returns the operand slots reading a value, in insertion order.
func (fn *Func) Uses(v Value) []Use {
	st := fn.state(v)
	if st == nil {
		return nil
	}
	return st.uses
}

// NumUses returns the number of operand slots reading a value.
func (fn *Func) NumUses(v Value) int {
	return len(fn.Uses(v))
}

// HasOneUse returns true if exactly one operand slot reads the value.
func (fn *Func) HasOneUse(v Value) bool {
	return fn.NumUses(v) == 1
}

func (fn *Func) addUse(v Value, use Use) {
	st := fn.state(v)
	st.uses = append(st.uses, use)
}

func (fn *Func) removeUse(v Value, use Use) {
	st := fn.state(v)
	for i, u := range st.uses {
		if u == use {
			st.uses = append(st.uses[:i], st.uses[i+1:]...)
			return
		}
	}
}

// ReplaceUses redirects every use of old to new.
// Both values must have equal types.
func (fn *Func) ReplaceUses(old, new Value) error {
	if old == new {
		return nil
	}
	oldT, newT := fn.ValueType(old), fn.ValueType(new)
	if oldT == nil || newT == nil {
		return errors.Errorf("cannot replace uses: invalid value handle")
	}
	if !oldT.Equal(newT) {
		return errors.Errorf("cannot replace uses of a %s value with a %s value", oldT.String(), newT.String())
	}
	st := fn.state(old)
	uses := st.uses
	st.uses = nil
	for _, use := range uses {
		owner := fn.ops[use.Owner]
		owner.operands[use.Index] = new
		fn.addUse(new, use)
	}
	return nil
}

// EraseOp removes an operation from the graph.
// Its results must be unused; operations nested in its blocks are
// removed with it.
func (fn *Func) EraseOp(op *Operation) error {
	if op.dead {
		return errors.Errorf("operation %s has already been erased", op.Where())
	}
	for _, res := range op.results {
		if n := fn.NumUses(res); n > 0 {
			return fmterr.Errorf(op, "cannot erase: result %%%d still has %d use(s)", int(res), n)
		}
	}
	for _, blk := range op.blocks {
		blk.eraseOps()
	}
	op.dropOperandUses()
	if op.block != nil {
		op.block.remove(op.id)
	}
	op.dead = true
	return nil
}

// ReplaceOp redirects all uses of the results of op to the given values
// and erases op. The value count and types must match the results.
func (fn *Func) ReplaceOp(op *Operation, with ...Value) error {
	if len(with) != len(op.results) {
		return fmterr.Errorf(op, "cannot replace %d result(s) with %d value(s)", len(op.results), len(with))
	}
	for i, res := range op.results {
		if err := fn.ReplaceUses(res, with[i]); err != nil {
			return fmterr.Position(op, err)
		}
	}
	return fn.EraseOp(op)
}

// MergeBlock appends the operations of src at the end of dst,
// replacing every parameter of src by the corresponding value of args.
// src is left empty.
func (fn *Func) MergeBlock(src, dst *Block, args []Value) error {
	if len(args) != len(src.params) {
		return errors.Errorf("cannot merge block: %d argument(s) for %d parameter(s)", len(args), len(src.params))
	}
	for i, param := range src.params {
		if err := fn.ReplaceUses(param, args[i]); err != nil {
			return err
		}
	}
	for _, id := range src.ops {
		op := fn.ops[id]
		if op.dead {
			continue
		}
		op.block = dst
		dst.ops = append(dst.ops, id)
	}
	src.ops = nil
	return nil
}

// ID returns the handle of the operation.
func (o *Operation) ID() OpID {
	return o.id
}

// Op returns the variant payload of the operation.
func (o *Operation) Op() Op {
	return o.op
}

// Name returns the mnemonic of the operation.
func (o *Operation) Name() string {
	return o.op.OpName()
}

// Func returns the function owning the operation.
func (o *Operation) Func() *Func {
	return o.fn
}

// Parent returns the block containing the operation.
func (o *Operation) Parent() *Block {
	return o.block
}

// NumOperands returns the number of operands of the operation.
func (o *Operation) NumOperands() int {
	return len(o.operands)
}

// Operand returns the i-th operand value.
func (o *Operation) Operand(i int) Value {
	return o.operands[i]
}

// Operands returns the operand values of the operation.
// The returned slice must not be mutated.
func (o *Operation) Operands() []Value {
	return o.operands
}

// SetOperand points the i-th operand slot at a new value.
func (o *Operation) SetOperand(i int, v Value) {
	o.fn.removeUse(o.operands[i], Use{Owner: o.id, Index: i})
	o.operands[i] = v
	o.fn.addUse(v, Use{Owner: o.id, Index: i})
}

// NumResults returns the number of results of the operation.
func (o *Operation) NumResults() int {
	return len(o.results)
}

// Result returns the i-th result value.
func (o *Operation) Result(i int) Value {
	return o.results[i]
}

// Results returns the result values of the operation.
// The returned slice must not be mutated.
func (o *Operation) Results() []Value {
	return o.results
}

// ResultTypes returns the types of the results of the operation.
func (o *Operation) ResultTypes() []Type {
	types := make([]Type, len(o.results))
	for i, res := range o.results {
		types[i] = o.fn.ValueType(res)
	}
	return types
}

// NumBlocks returns the number of blocks owned by the operation.
func (o *Operation) NumBlocks() int {
	return len(o.blocks)
}

// Block returns the i-th block owned by the operation.
func (o *Operation) Block(i int) *Block {
	return o.blocks[i]
}

// NewBlock appends an empty block to the operation and returns it.
func (o *Operation) NewBlock() *Block {
	blk := &Block{fn: o.fn, owner: o}
	o.blocks = append(o.blocks, blk)
	return blk
}

// Where returns a human readable location of the operation for errors.
func (o *Operation) Where() string {
	return fmt.Sprintf("%s: %s %%%d", o.fn.name, o.Name(), int(o.id))
}

func (o *Operation) dropOperandUses() {
	for i, v := range o.operands {
		o.fn.removeUse(v, Use{Owner: o.id, Index: i})
	}
}

// Func returns the function owning the block.
func (b *Block) Func() *Func {
	return b.fn
}

// Owner returns the operation owning the block,
// or nil for the body of a function.
func (b *Block) Owner() *Operation {
	return b.owner
}

// NumParams returns the number of parameters of the block.
func (b *Block) NumParams() int {
	return len(b.params)
}

// Param returns the i-th parameter value of the block.
func (b *Block) Param(i int) Value {
	return b.params[i]
}

// Params returns the parameter values of the block.
// The returned slice must not be mutated.
func (b *Block) Params() []Value {
	return b.params
}

// AddParam appends a parameter of the given type to the block.
func (b *Block) AddParam(typ Type) Value {
	v := b.fn.newValue(typ, InvalidOp, len(b.params), b)
	b.params = append(b.params, v)
	return v
}

// NumOps returns the number of live operations of the block.
func (b *Block) NumOps() int {
	n := 0
	for _, id := range b.ops {
		if b.fn.Op(id) != nil {
			n++
		}
	}
	return n
}

// Operations returns an iterator over the live operations of the block.
func (b *Block) Operations() iter.Seq[*Operation] {
	return func(yield func(*Operation) bool) {
		for _, id := range slices.Clone(b.ops) {
			op := b.fn.Op(id)
			if op == nil {
				continue
			}
			if !yield(op) {
				break
			}
		}
	}
}

// Terminator returns the last live operation of the block,
// or nil if the block is empty.
func (b *Block) Terminator() *Operation {
	for i := len(b.ops) - 1; i >= 0; i-- {
		if op := b.fn.Op(b.ops[i]); op != nil {
			return op
		}
	}
	return nil
}

func (b *Block) walk(visit func(*Operation) bool) bool {
	for _, id := range slices.Clone(b.ops) {
		op := b.fn.Op(id)
		if op == nil {
			continue
		}
		if !visit(op) {
			return false
		}
		for _, blk := range op.blocks {
			if !blk.walk(visit) {
				return false
			}
		}
	}
	return true
}

func (b *Block) remove(id OpID) {
	for i, oid := range b.ops {
		if oid == id {
			b.ops = append(b.ops[:i], b.ops[i+1:]...)
			return
		}
	}
}

func (b *Block) eraseOps() {
	for i := len(b.ops) - 1; i >= 0; i-- {
		op := b.fn.Op(b.ops[i])
		if op == nil {
			continue
		}
		for _, blk := range op.blocks {
			blk.eraseOps()
		}
		op.dropOperandUses()
		op.dead = true
	}
	b.ops = nil
}

// Builder creates operations at an insertion point in a block.
type Builder struct {
	block *Block
	at    int

	// Listen, when set, is called after each operation the builder creates.
	Listen func(*Operation)
}

// AtStart returns a builder inserting at the beginning of a block.
func AtStart(b *Block) *Builder {
	return &Builder{block: b}
}

// AtEnd returns a builder inserting at the end of a block.
func AtEnd(b *Block) *Builder {
	return &Builder{block: b, at: len(b.ops)}
}

// Before returns a builder inserting in front of an operation.
func Before(op *Operation) *Builder {
	blk := op.Parent()
	at := 0
	for i, id := range blk.ops {
		if id == op.id {
			at = i
			break
		}
	}
	return &Builder{block: blk, at: at}
}

// Block returns the block the builder inserts into.
func (bld *Builder) Block() *Block {
	return bld.block
}

// Create appends a new operation at the insertion point and advances it.
func (bld *Builder) Create(v Op, operands []Value, resultTypes []Type) *Operation {
	fn := bld.block.fn
	op := &Operation{
		fn:       fn,
		id:       OpID(len(fn.ops)),
		op:       v,
		operands: slices.Clone(operands),
		block:    bld.block,
	}
	fn.ops = append(fn.ops, op)
	for i, operand := range op.operands {
		fn.addUse(operand, Use{Owner: op.id, Index: i})
	}
	op.results = make([]Value, len(resultTypes))
	for i, typ := range resultTypes {
		op.results[i] = fn.newValue(typ, op.id, i, nil)
	}
	bld.block.ops = slices.Insert(bld.block.ops, bld.at, op.id)
	bld.at++
	if bld.Listen != nil {
		bld.Listen(op)
	}
	return op
}
