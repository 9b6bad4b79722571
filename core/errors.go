// Copyright 2025 Poiesic Systems
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


package core

import "errors"

// Domain validation errors
var (
	// ErrInvalidRecord indicates a Record failed validation.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrInvalidPosition indicates an ImportPosition failed validation.
	ErrInvalidPosition = errors.New("invalid import position")

	// ErrInvalidValueType indicates an unknown ValueType value or name.
	ErrInvalidValueType = errors.New("invalid value type")

	// ErrInvalidPartition indicates a partition id below 1.
	ErrInvalidPartition = errors.New("partition id must be positive")

	// ErrNegativePosition indicates a negative position or sequence.
	ErrNegativePosition = errors.New("position cannot be negative")

	// ErrMissingValue indicates a record without a value payload.
	ErrMissingValue = errors.New("record value cannot be empty")
)
