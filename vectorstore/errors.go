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


package vectorstore

import "errors"

var (
	// ErrInvalidPoint indicates a point is missing its id, vector or document id.
	ErrInvalidPoint = errors.New("invalid point")

	// ErrDimensionMismatch indicates points of different dimensions in one batch.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrInvalidConfig indicates a vector store configuration error.
	ErrInvalidConfig = errors.New("invalid vector store configuration")

	// ErrInvalidScope indicates a deletion without a source type or source.
	ErrInvalidScope = errors.New("invalid source scope")

	// ErrClosed indicates the client was used after Close.
	ErrClosed = errors.New("vector store closed")
)
