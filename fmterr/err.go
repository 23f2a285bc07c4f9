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

package fmterr

import (
	"fmt"
	"runtime/debug"

	"github.com/pkg/errors"
)

type (
	// ErrorAt is an error attached to a location in a stencil program.
	ErrorAt interface {
		error
		At() At
		Err() error
	}

	errorAt struct {
		at    At
		where string
		err   error
	}
)

var _ ErrorAt = errorAt{}

// Position adds location information to an error.
func Position(at At, err error) ErrorAt {
	return errorAt{
		at:    at,
		where: at.Where(), // Cache the location to make sure at is valid.
		err:   err,
	}
}

// Errorf returns a formatted error for the user at a location in a program.
func Errorf(at At, format string, a ...any) error {
	return Position(at, errors.Errorf(format, a...))
}

// Internal marks an error as internal, potentially adding additional information.
func Internal(err error) error {
	return fmt.Errorf("stencil internal error. This is a bug in the stencil compiler. Please report it. Error:\n%+v", err)
}

// Internalf returns a formatted internal error at a location in a program.
func Internalf(at At, format string, a ...any) error {
	err := Errorf(at, format, a...)
	return Internal(err)
}

// Error returns a string description of the error.
func (err errorAt) Error() (s string) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		s = fmt.Sprintf("recovered from panic when building error message: %T:\n%v", err.err, string(debug.Stack()))
	}()
	if err.at == nil {
		return err.err.Error()
	}
	return err.where + ": " + err.err.Error()
}

// Unwrap the error.
func (err errorAt) Unwrap() error {
	return err.err
}

// Format writes the error into the state of the formatter.
func (err errorAt) Format(s fmt.State, verb rune) {
	format(err, s, verb)
}

func (err errorAt) At() At {
	return err.at
}

func (err errorAt) Err() error {
	return err.err
}
