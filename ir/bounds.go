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
	"slices"
	"strings"

	"github.com/pkg/errors"
)

// IndexSize is the canonical number of axes of a stencil program.
const IndexSize = 3

type (
	// Index is a point in the iteration space, one coordinate per axis.
	Index []int64

	// Loop packs the lower and upper offsets of a range access,
	// all lower coordinates first.
	Loop []int64

	// Bounds is a half-open rectangular iteration domain.
	// A point p belongs to the domain if LB <= p < UB on every axis.
	Bounds struct {
		LB Index
		UB Index
	}
)

// Zero returns the origin of an iteration space of the given rank.
func Zero(rank int) Index {
	return make(Index, rank)
}

// Rank returns the number of axes of the index.
func (idx Index) Rank() int {
	return len(idx)
}

// Equal returns true if both indices have the same coordinates.
func (idx Index) Equal(other Index) bool {
	if len(idx) != len(other) {
		return false
	}
	for i, c := range idx {
		if c != other[i] {
			return false
		}
	}
	return true
}

// Add returns the elementwise sum of two indices of the same rank.
func (idx Index) Add(other Index) (Index, error) {
	if len(idx) != len(other) {
		return nil, errors.Errorf("cannot add index of rank %d to index of rank %d", len(other), len(idx))
	}
	sum := make(Index, len(idx))
	for i, c := range idx {
		sum[i] = c + other[i]
	}
	return sum, nil
}

// Clone returns a copy of the index. A nil index stays nil.
func (idx Index) Clone() Index {
	return slices.Clone(idx)
}

// String representation of the index.
func (idx Index) String() string {
	cs := make([]string, len(idx))
	for i, c := range idx {
		cs[i] = fmt.Sprint(c)
	}
	return "[" + strings.Join(cs, ", ") + "]"
}

// Rank returns the number of axes of the range.
func (l Loop) Rank() int {
	return len(l) / 2
}

// Lower returns the lower offsets of the range.
func (l Loop) Lower() Index {
	return Index(l[:len(l)/2])
}

// Upper returns the upper offsets of the range.
func (l Loop) Upper() Index {
	return Index(l[len(l)/2:])
}

// Check returns an error if the range is malformed.
func (l Loop) Check() error {
	if len(l)%2 != 0 {
		return errors.Errorf("range has %d coordinates: want an even number", len(l))
	}
	for i, lo := range l.Lower() {
		if up := l.Upper()[i]; lo > up {
			return errors.Errorf("range is inverted on axis %d: lower %d is above upper %d", i, lo, up)
		}
	}
	return nil
}

// Rank returns the number of axes of the domain.
func (b Bounds) Rank() int {
	return len(b.LB)
}

// Check returns an error if the domain is malformed.
func (b Bounds) Check() error {
	if len(b.LB) != len(b.UB) {
		return errors.Errorf("bound ranks do not match: lower has %d coordinates and upper has %d", len(b.LB), len(b.UB))
	}
	for i, lb := range b.LB {
		if ub := b.UB[i]; lb > ub {
			return errors.Errorf("domain is empty on axis %d: lower bound %d is above upper bound %d", i, lb, ub)
		}
	}
	return nil
}

// Shape returns the per-axis extent of the domain.
func (b Bounds) Shape() []int64 {
	shape := make([]int64, len(b.LB))
	for i, lb := range b.LB {
		shape[i] = b.UB[i] - lb
	}
	return shape
}

// Equal returns true if both domains cover exactly the same points.
func (b Bounds) Equal(other Bounds) bool {
	return b.LB.Equal(other.LB) && b.UB.Equal(other.UB)
}

// Covers returns true if the domain includes every point of other.
func (b Bounds) Covers(other Bounds) bool {
	if b.Rank() != other.Rank() {
		return false
	}
	for i, lb := range b.LB {
		if lb > other.LB[i] || b.UB[i] < other.UB[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the domain.
func (b Bounds) Clone() Bounds {
	return Bounds{LB: b.LB.Clone(), UB: b.UB.Clone()}
}

// Translate returns the domain shifted by an offset.
func (b Bounds) Translate(offset Index) (Bounds, error) {
	lb, err := b.LB.Add(offset)
	if err != nil {
		return Bounds{}, err
	}
	ub, err := b.UB.Add(offset)
	if err != nil {
		return Bounds{}, err
	}
	return Bounds{LB: lb, UB: ub}, nil
}

// Grow returns the domain widened by the lower and upper offsets of a range.
func (b Bounds) Grow(rng Loop) (Bounds, error) {
	if rng.Rank() != b.Rank() {
		return Bounds{}, errors.Errorf("cannot grow bounds of rank %d by a range of rank %d", b.Rank(), rng.Rank())
	}
	lb, err := b.LB.Add(rng.Lower())
	if err != nil {
		return Bounds{}, err
	}
	ub, err := b.UB.Add(rng.Upper())
	if err != nil {
		return Bounds{}, err
	}
	return Bounds{LB: lb, UB: ub}, nil
}

// ClampUpper returns the domain with its upper bound on dim capped at v.
func (b Bounds) ClampUpper(dim int, v int64) Bounds {
	clamped := b.Clone()
	clamped.UB[dim] = min(clamped.UB[dim], v)
	return clamped
}

// ClampLower returns the domain with its lower bound on dim raised to v.
func (b Bounds) ClampLower(dim int, v int64) Bounds {
	clamped := b.Clone()
	clamped.LB[dim] = max(clamped.LB[dim], v)
	return clamped
}

// String representation of the domain.
func (b Bounds) String() string {
	return b.LB.String() + ":" + b.UB.String()
}

// Union returns the smallest domain covering both a and b.
func Union(a, b Bounds) (Bounds, error) {
	if a.Rank() != b.Rank() {
		return Bounds{}, errors.Errorf("cannot unite bounds of rank %d and rank %d", a.Rank(), b.Rank())
	}
	u := Bounds{LB: make(Index, a.Rank()), UB: make(Index, a.Rank())}
	for i := range u.LB {
		u.LB[i] = min(a.LB[i], b.LB[i])
		u.UB[i] = max(a.UB[i], b.UB[i])
	}
	return u, nil
}
