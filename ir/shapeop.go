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

// ShapeOp is implemented by operation views carrying an iteration
// domain. The domain of a cast is always declared; for the other
// operations it may be absent until shape inference runs.
type ShapeOp interface {
	// Operation returns the underlying operation.
	Operation() *Operation
	// HasBounds returns true if the domain of the operation is declared.
	HasBounds() bool
	// Bounds returns the declared domain of the operation.
	// It must only be called when HasBounds returns true.
	Bounds() Bounds
	// SetBounds declares the domain of the operation.
	SetBounds(Bounds)
}

var (
	_ ShapeOp = CastOp{}
	_ ShapeOp = LoadOp{}
	_ ShapeOp = BufferOp{}
	_ ShapeOp = StoreOp{}
	_ ShapeOp = ApplyOp{}
	_ ShapeOp = CombineOp{}
)

// AsShapeOp returns a shape view of op if op carries an iteration domain.
func AsShapeOp(op *Operation) (ShapeOp, bool) {
	switch op.Op().(type) {
	case *Cast:
		return CastOp{op: op}, true
	case *Load:
		return LoadOp{op: op}, true
	case *Buffer:
		return BufferOp{op: op}, true
	case *Store:
		return StoreOp{op: op}, true
	case *Apply:
		return ApplyOp{op: op}, true
	case *Combine:
		return CombineOp{op: op}, true
	}
	return nil, false
}

// OperandExtent returns the domain the kernel of the apply reads from
// its i-th operand: the union over every access of the corresponding
// parameter of the domain of the apply shifted by the access pattern.
// It returns false if the apply has no declared domain or the kernel
// never accesses the parameter.
func (v ApplyOp) OperandExtent(i int) (Bounds, bool, error) {
	if !v.HasBounds() {
		return Bounds{}, false, nil
	}
	if v.Operation().NumBlocks() == 0 || i >= v.Body().NumParams() {
		// Verification reports the malformed kernel.
		return Bounds{}, false, nil
	}
	bounds := v.Bounds()
	param := v.Body().Param(i)
	var extent Bounds
	found := false
	var failure error
	v.Body().walk(func(op *Operation) bool {
		var accessed Bounds
		var err error
		switch p := op.Op().(type) {
		case *Access:
			if op.Operand(0) != param {
				return true
			}
			accessed, err = bounds.Translate(p.Offset)
		case *DynAccess:
			if op.Operand(0) != param {
				return true
			}
			accessed, err = bounds.Grow(p.Range)
		default:
			return true
		}
		if err != nil {
			failure = err
			return false
		}
		if !found {
			extent = accessed
			found = true
			return true
		}
		extent, err = Union(extent, accessed)
		if err != nil {
			failure = err
			return false
		}
		return true
	})
	if failure != nil {
		return Bounds{}, false, failure
	}
	return extent, found, nil
}

// OperandRequest returns the sub-domain the combine requires from its
// i-th operand: the declared domain of the combine clamped to the side
// of the split the operand computes.
// It returns false if the combine has no declared domain.
func (v CombineOp) OperandRequest(i int) (Bounds, bool) {
	if !v.HasBounds() {
		return Bounds{}, false
	}
	p := v.payload()
	bounds := v.Bounds()
	lowerSide := i < p.NLower || (i >= 2*p.NLower && i < 2*p.NLower+p.NLowerExt)
	if lowerSide {
		return bounds.ClampUpper(p.Dim, p.Index), true
	}
	return bounds.ClampLower(p.Dim, p.Index), true
}

// ConsumerRequest returns the domain the operation reading a value at
// the given use requires from it, or false if the consumer does not
// constrain the value.
func ConsumerRequest(fn *Func, use Use) (Bounds, bool, error) {
	op := fn.Op(use.Owner)
	if op == nil {
		return Bounds{}, false, nil
	}
	switch op.Op().(type) {
	case *Load:
		load, _ := AsLoad(op)
		if !load.HasBounds() {
			return Bounds{}, false, nil
		}
		return load.Bounds(), true, nil
	case *Store:
		store, _ := AsStore(op)
		if !store.HasBounds() {
			return Bounds{}, false, nil
		}
		return store.Bounds(), true, nil
	case *Buffer:
		buffer, _ := AsBuffer(op)
		if !buffer.HasBounds() {
			return Bounds{}, false, nil
		}
		return buffer.Bounds(), true, nil
	case *Apply:
		apply, _ := AsApply(op)
		return apply.OperandExtent(use.Index)
	case *Combine:
		combine, _ := AsCombine(op)
		req, ok := combine.OperandRequest(use.Index)
		return req, ok, nil
	}
	return Bounds{}, false, nil
}

// RequiredBounds returns the union of the domains every consumer of the
// given values requires, or false if no consumer constrains them.
func RequiredBounds(fn *Func, vals ...Value) (Bounds, bool, error) {
	var required Bounds
	found := false
	for _, val := range vals {
		for _, use := range fn.Uses(val) {
			req, ok, err := ConsumerRequest(fn, use)
			if err != nil {
				return Bounds{}, false, err
			}
			if !ok {
				continue
			}
			if !found {
				required = req
				found = true
				continue
			}
			required, err = Union(required, req)
			if err != nil {
				return Bounds{}, false, err
			}
		}
	}
	return required, found, nil
}
