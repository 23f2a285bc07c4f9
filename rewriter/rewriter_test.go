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

package rewriter_test

import (
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gx-org/stencil/ir"
	"github.com/gx-org/stencil/ir/irhelper"
	"github.com/gx-org/stencil/rewriter"
	"github.com/pkg/errors"
)

// constantProgram builds a program holding a single index constant.
func constantProgram(value int64) *ir.Func {
	fn := irhelper.Program("main")
	ir.AtEnd(fn.Body()).Create(&ir.Constant{Value: value}, nil, []ir.Type{&ir.IndexType{}})
	return fn
}

// probe records the patterns tried on constants without rewriting.
type probe struct {
	name    string
	benefit int
	log     *[]string
}

func (p probe) Name() string { return p.name }

func (p probe) Benefit() int { return p.benefit }

func (p probe) MatchAndRewrite(rw *rewriter.Rewriter, op *ir.Operation) (bool, error) {
	if _, ok := op.Op().(*ir.Constant); !ok {
		return false, nil
	}
	*p.log = append(*p.log, p.name)
	return false, nil
}

func TestApplyBenefitOrder(t *testing.T) {
	fn := constantProgram(1)
	var log []string
	patterns := []rewriter.Pattern{
		probe{name: "low", benefit: 1, log: &log},
		probe{name: "high", benefit: 5, log: &log},
	}
	diags := rewriter.Diagnostics{}
	if err := rewriter.Apply(fn, patterns, &diags); err != nil {
		t.Fatalf("cannot rewrite: %v", err)
	}
	if diff := cmp.Diff([]string{"high", "low"}, log); diff != "" {
		t.Errorf("unexpected pattern order:\n%s", diff)
	}
}

// countdown replaces a positive constant by its predecessor.
type countdown struct{}

func (countdown) Name() string { return "countdown" }

func (countdown) Benefit() int { return 1 }

func (countdown) MatchAndRewrite(rw *rewriter.Rewriter, op *ir.Operation) (bool, error) {
	constant, ok := op.Op().(*ir.Constant)
	if !ok || constant.Value == 0 {
		return false, nil
	}
	next := rw.Before(op).Create(&ir.Constant{Value: constant.Value - 1}, nil, slices.Clone(op.ResultTypes()))
	if err := rw.ReplaceOp(op, next.Results()...); err != nil {
		return false, err
	}
	return true, nil
}

func TestApplyRewritesToFixpoint(t *testing.T) {
	fn := constantProgram(5)
	diags := rewriter.Diagnostics{}
	if err := rewriter.Apply(fn, []rewriter.Pattern{countdown{}}, &diags); err != nil {
		t.Fatalf("cannot rewrite: %v", err)
	}
	ops := fn.Operations()
	if len(ops) != 1 {
		t.Fatalf("got %d op(s) but want 1", len(ops))
	}
	constant, ok := ops[0].Op().(*ir.Constant)
	if !ok || constant.Value != 0 {
		t.Errorf("got %s but want a constant rewritten down to 0", ops[0])
	}
}

// warner raises a warning on every constant it sees.
type warner struct{}

func (warner) Name() string { return "warner" }

func (warner) Benefit() int { return 1 }

func (warner) MatchAndRewrite(rw *rewriter.Rewriter, op *ir.Operation) (bool, error) {
	if _, ok := op.Op().(*ir.Constant); !ok {
		return false, nil
	}
	rw.Warnf(op, "constant left in place")
	return false, nil
}

func TestApplyCollectsWarnings(t *testing.T) {
	fn := constantProgram(1)
	diags := rewriter.Diagnostics{}
	if !diags.Empty() {
		t.Fatalf("got warnings before the rewrite")
	}
	if err := rewriter.Apply(fn, []rewriter.Pattern{warner{}}, &diags); err != nil {
		t.Fatalf("cannot rewrite: %v", err)
	}
	warnings := diags.Warnings()
	if len(warnings) != 1 || !strings.Contains(warnings[0].Error(), "constant left in place") {
		t.Errorf("got warnings %v but want the warning of the pattern", warnings)
	}
}

// failing errors out on every constant.
type failing struct{}

func (failing) Name() string { return "boom" }

func (failing) Benefit() int { return 1 }

func (failing) MatchAndRewrite(rw *rewriter.Rewriter, op *ir.Operation) (bool, error) {
	if _, ok := op.Op().(*ir.Constant); !ok {
		return false, nil
	}
	return false, errors.New("kaboom")
}

func TestApplyWrapsPatternErrors(t *testing.T) {
	fn := constantProgram(1)
	diags := rewriter.Diagnostics{}
	err := rewriter.Apply(fn, []rewriter.Pattern{failing{}}, &diags)
	if err == nil || !strings.Contains(err.Error(), "pattern boom failed on") {
		t.Fatalf("got error %v but want the pattern failure", err)
	}
	if !strings.Contains(err.Error(), "kaboom") {
		t.Errorf("got error %v but want the cause preserved", err)
	}
}

// spin claims to fire without changing the graph.
type spin struct{}

func (spin) Name() string { return "spin" }

func (spin) Benefit() int { return 1 }

func (spin) MatchAndRewrite(rw *rewriter.Rewriter, op *ir.Operation) (bool, error) {
	_, ok := op.Op().(*ir.Constant)
	return ok, nil
}

func TestApplyBoundsNonConvergence(t *testing.T) {
	fn := constantProgram(1)
	diags := rewriter.Diagnostics{}
	err := rewriter.Apply(fn, []rewriter.Pattern{spin{}}, &diags)
	if err == nil || !strings.Contains(err.Error(), "did not converge") {
		t.Fatalf("got error %v but want a convergence error", err)
	}
}
