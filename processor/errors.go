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


package processor

import "errors"

var (
	// ErrNoDefaultProcessor indicates a registry without a processor for LegacyVersion.
	ErrNoDefaultProcessor = errors.New("no processor registered for the legacy version")

	// ErrInvalidProcessor indicates a nil processor was registered.
	ErrInvalidProcessor = errors.New("invalid processor")

	// ErrMalformedPayload indicates a record value is missing a required field
	// or holds a field of the wrong type.
	ErrMalformedPayload = errors.New("malformed record payload")

	// ErrUnsupportedValueType indicates a record of a value type no decoder handles.
	ErrUnsupportedValueType = errors.New("unsupported value type")
)
