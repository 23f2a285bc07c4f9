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

	basefmt "github.com/gx-org/stencil/base/fmt"
	"github.com/gx-org/stencil/base/iter"
	"github.com/gx-org/stencil/base/stringseq"
)

// String renders the value handle for debugging.
func (v Value) String() string {
	return fmt.Sprintf("%%%d", int(v))
}

// String returns a textual rendering of the function for debugging.
func (fn *Func) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "func %s(%s)", fn.name, paramsString(fn.body))
	if fn.program {
		sb.WriteString(" program")
	}
	sb.WriteString(" {")
	if body := blockString(fn.body); body != "" {
		sb.WriteString("\n")
		sb.WriteString(basefmt.Indent(body))
	}
	sb.WriteString("\n}\n")
	return sb.String()
}

// String returns a textual rendering of the operation for debugging.
// Nested blocks are rendered indented below the operation line.
func (o *Operation) String() string {
	line := ""
	if o.NumResults() > 0 {
		line = stringseq.JoinStringer(iter.All(o.Results()), ", ") + " = "
	}
	line += fmt.Sprintf("%s(%s)", o.Name(), stringseq.JoinStringer(iter.All(o.Operands()), ", "))
	if attrs := opAttrs(o); attrs != "" {
		line += " " + attrs
	}
	if types := resultTypes(o); types != "" {
		line += " : " + types
	}
	if o.NumBlocks() == 0 {
		return line
	}
	var sb strings.Builder
	sb.WriteString(line)
	sb.WriteString(" {")
	for i := range o.NumBlocks() {
		if i > 0 {
			sb.WriteString("\n} else {")
		}
		blk := o.Block(i)
		inner := blockString(blk)
		if blk.NumParams() > 0 {
			inner = "^(" + paramsString(blk) + "):\n" + inner
		}
		sb.WriteString("\n")
		sb.WriteString(basefmt.Indent(inner))
	}
	sb.WriteString("\n}")
	return sb.String()
}

func blockString(blk *Block) string {
	return stringseq.JoinStringer(blk.Operations(), "\n")
}

func paramsString(blk *Block) string {
	return stringseq.Join(func(yield func(string) bool) {
		for _, param := range blk.Params() {
			decl := param.String() + ": " + blk.fn.ValueType(param).String()
			if !yield(decl) {
				return
			}
		}
	}, ", ")
}

func opAttrs(op *Operation) string {
	switch payload := op.Op().(type) {
	case *Cast:
		return payload.Domain.String()
	case *Load:
		return domainAttr(payload.Domain)
	case *Buffer:
		return domainAttr(payload.Domain)
	case *Store:
		return domainAttr(payload.Domain)
	case *Apply:
		return domainAttr(payload.Domain)
	case *Combine:
		attr := fmt.Sprintf("dim %d at %d", payload.Dim, payload.Index)
		if payload.Domain != nil {
			attr += " " + payload.Domain.String()
		}
		return attr
	case *Access:
		return payload.Offset.String()
	case *DynAccess:
		return payload.Range.Lower().String() + ":" + payload.Range.Upper().String()
	case *Pos:
		return fmt.Sprintf("dim %d %s", payload.Dim, payload.Offset.String())
	case *Return:
		if payload.Unroll != nil {
			return "unroll " + payload.Unroll.String()
		}
	case *Constant:
		return fmt.Sprint(payload.Value)
	case *Cmp:
		return payload.Pred.String()
	}
	return ""
}

func domainAttr(domain *Bounds) string {
	if domain == nil {
		return ""
	}
	return domain.String()
}

func resultTypes(op *Operation) string {
	if op.NumResults() == 0 {
		return ""
	}
	return stringseq.JoinStringer(iter.All(op.ResultTypes()), ", ")
}
