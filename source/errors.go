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


package source

import "errors"

var (
	// ErrIndexNotFound indicates no index matches the requested pattern yet.
	ErrIndexNotFound = errors.New("index not found")

	// ErrInvalidRequest indicates a malformed search request.
	ErrInvalidRequest = errors.New("invalid search request")

	// ErrSourceClosed indicates the source has been closed.
	ErrSourceClosed = errors.New("source is closed")
)
