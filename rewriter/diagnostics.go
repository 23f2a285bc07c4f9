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

package rewriter

import "github.com/gx-org/stencil/fmterr"

// Diagnostics collects warnings raised while rewriting a graph.
// Warnings report suspicious but recoverable situations. They never
// stop a rewrite.
type Diagnostics struct {
	warns []error
}

// Warnf records a warning located at a graph element.
func (d *Diagnostics) Warnf(at fmterr.At, format string, a ...any) {
	d.warns = append(d.warns, fmterr.Errorf(at, format, a...))
}

// Warnings returns all the warnings recorded so far.
func (d *Diagnostics) Warnings() []error {
	return d.warns
}

// Empty returns true if no warning has been recorded.
func (d *Diagnostics) Empty() bool {
	return len(d.warns) == 0
}
