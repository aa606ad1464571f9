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


// Package ai provides the embedding abstraction used by docsync.
//
// The Embedder interface turns text into vectors. Implementations live in
// sub-packages:
//
//   - ai/openai: OpenAI-compatible APIs via langchaingo
//   - ai/mock: deterministic test double
//
// Public constructors return the ai.Embedder interface; mock constructors
// return concrete types so tests can inspect calls.
//
//	cfg := ai.NewConfig(ai.WithEmbeddingModel("text-embedding-3-small"))
//	embedder, err := openai.NewEmbedder(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	embedder = ai.NewRateLimitedEmbedder(embedder, cfg.RequestsPerSecond, cfg.Burst)
package ai
